package sync

import (
	"context"
	"fmt"
	"time"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
	"portal-sync/internal/platform/logger"
	"portal-sync/internal/store"
)

// CourseDefaults are applied to courses created from the LMS.
type CourseDefaults struct {
	Price    float64
	Currency string
}

// CourseReconciler upserts every LMS course into the portal.
type CourseReconciler struct {
	remote   Remote
	store    store.Store
	resolver *Resolver
	defaults CourseDefaults
	now      func() time.Time
	log      *logger.Logger
}

func NewCourseReconciler(remote Remote, st store.Store, resolver *Resolver, defaults CourseDefaults, now func() time.Time, log *logger.Logger) *CourseReconciler {
	return &CourseReconciler{
		remote:   remote,
		store:    st,
		resolver: resolver,
		defaults: defaults,
		now:      now,
		log:      log.With("component", "course_reconciler"),
	}
}

func (r *CourseReconciler) Run(ctx context.Context) Report {
	start := time.Now()
	rep := newReport(EntityCourses)
	defer func() { rep.Duration = time.Since(start) }()

	courses, err := r.remote.ListCourses(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("list courses: %w", err)
		r.log.Error("course listing failed", "error", err)
		return rep
	}

	for _, rc := range courses {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		rep.Examined++
		outcome, err := r.reconcile(ctx, rc)
		if err != nil {
			r.log.Warn("course sync failed", "remote_id", rc.ID, "op", "upsert_course", "error", err)
			rep.fail("course %d: %v", rc.ID, err)
			continue
		}
		outcome.count(&rep)
	}
	r.log.Info("courses reconciled", "examined", rep.Examined, "created", rep.Created,
		"updated", rep.Updated, "skipped", rep.Skipped, "errored", rep.Errored)
	return rep
}

func (r *CourseReconciler) reconcile(ctx context.Context, rc lms.Course) (outcome, error) {
	local, isNew, err := r.resolver.ResolveCourse(ctx, rc)
	if err != nil {
		return 0, err
	}
	now := r.now()

	if isNew {
		c := &domain.Course{
			RemoteID:     domain.Int64Ptr(rc.ID),
			Price:        r.defaults.Price,
			Currency:     r.defaults.Currency,
			SyncStatus:   domain.SyncSynced,
			LastSyncedAt: domain.TimePtr(now),
		}
		applyCourse(c, rc)
		if c.Title == "" {
			c.Title = clean(rc.ShortName)
		}
		if err := r.store.CreateCourse(ctx, c); err != nil {
			return 0, fmt.Errorf("create course: %w", err)
		}
		r.log.Debug("course created", "remote_id", rc.ID, "course_id", c.ID)
		return outcomeCreated, nil
	}

	if !applyCourse(local, rc) && local.SyncStatus == domain.SyncSynced {
		return outcomeSkipped, nil
	}
	local.SyncStatus = domain.SyncSynced
	local.LastSyncError = ""
	local.LastSyncedAt = domain.TimePtr(now)
	if err := r.store.UpdateCourse(ctx, local); err != nil {
		return 0, fmt.Errorf("update course %s: %w", local.ID, err)
	}
	return outcomeUpdated, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota + 1
	outcomeCreated
	outcomeUpdated
)

func (o outcome) count(rep *Report) {
	switch o {
	case outcomeCreated:
		rep.Created++
	case outcomeUpdated:
		rep.Updated++
	default:
		rep.Skipped++
	}
}

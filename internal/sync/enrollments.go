package sync

import (
	"context"
	"fmt"
	"time"

	"portal-sync/internal/concurrency"
	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
	"portal-sync/internal/platform/logger"
	"portal-sync/internal/store"
)

// EnrollmentReconciler walks the enrolled-users listing of every linked
// course. It is the only pass that sees roles, so it also creates missing
// users and escalates roles.
type EnrollmentReconciler struct {
	remote   Remote
	store    store.Store
	resolver *Resolver
	policy   RolePolicy
	workers  int
	now      func() time.Time
	log      *logger.Logger

	// one lock per remote user id; course workers touching different
	// users proceed in parallel
	userLocks concurrency.KeyedMutex[int64]
}

func NewEnrollmentReconciler(remote Remote, st store.Store, resolver *Resolver, policy RolePolicy, workers int, now func() time.Time, log *logger.Logger) *EnrollmentReconciler {
	return &EnrollmentReconciler{
		remote:   remote,
		store:    st,
		resolver: resolver,
		policy:   policy,
		workers:  workers,
		now:      now,
		log:      log.With("component", "enrollment_reconciler"),
	}
}

func (r *EnrollmentReconciler) Run(ctx context.Context) Report {
	start := time.Now()
	rep := newReport(EntityEnrollments)
	defer func() { rep.Duration = time.Since(start) }()

	courses, err := r.store.ListLinkedCourses(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("list linked courses: %w", err)
		r.log.Error("linked course listing failed", "error", err)
		return rep
	}

	perCourse, errs := concurrency.ProcessParallel(ctx, courses, concurrency.ParallelOptions{MaxWorkers: r.workers},
		func(ctx context.Context, _ int, c *domain.Course) (Report, error) {
			return r.reconcileCourse(ctx, c), nil
		})
	for _, cr := range perCourse {
		rep.Merge(cr)
	}
	if len(errs) > 0 && rep.Err == nil {
		rep.Err = errs[0]
	}

	r.log.Info("enrollments reconciled", "courses", len(courses), "examined", rep.Examined,
		"created", rep.Created, "updated", rep.Updated, "skipped", rep.Skipped, "errored", rep.Errored)
	return rep
}

// reconcileCourse handles one course sequentially so that a user is always
// resolved before its enrollment.
func (r *EnrollmentReconciler) reconcileCourse(ctx context.Context, c *domain.Course) Report {
	rep := newReport(EntityEnrollments)
	remoteCourseID := *c.RemoteID

	users, err := r.remote.ListEnrolledUsers(ctx, remoteCourseID)
	if err != nil {
		r.log.Warn("enrolled users listing failed", "course_id", c.ID, "remote_id", remoteCourseID,
			"op", "list_enrolled_users", "error", err)
		rep.fail("course %d: list enrolled users: %v", remoteCourseID, err)
		return rep
	}

	for _, ru := range users {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		rep.Examined++
		if normEmail(ru.Email) == "" {
			r.log.Debug("enrolled user without email skipped", "course_remote_id", remoteCourseID, "remote_id", ru.ID)
			rep.Skipped++
			continue
		}
		outcome, err := r.reconcileEnrollment(ctx, c, ru)
		if err != nil {
			r.log.Warn("enrollment sync failed", "course_id", c.ID, "course_remote_id", remoteCourseID,
				"remote_id", ru.ID, "op", "upsert_enrollment", "error", err)
			rep.fail("enrollment course %d user %d: %v", remoteCourseID, ru.ID, err)
			continue
		}
		outcome.count(&rep)
	}
	return rep
}

func (r *EnrollmentReconciler) reconcileEnrollment(ctx context.Context, c *domain.Course, ru lms.User) (outcome, error) {
	u, userChanged, err := r.upsertUser(ctx, ru)
	if err != nil {
		return 0, err
	}

	now := r.now()
	e, err := r.store.FindEnrollment(ctx, u.ID, c.ID)
	if err != nil {
		return 0, fmt.Errorf("find enrollment: %w", err)
	}
	if e == nil {
		e = &domain.Enrollment{
			UserID:       u.ID,
			CourseID:     c.ID,
			Status:       domain.EnrollmentEnrolled,
			EnrolledAt:   now,
			SyncStatus:   domain.SyncSynced,
			LastSyncedAt: domain.TimePtr(now),
		}
		if err := r.store.CreateEnrollment(ctx, e); err != nil {
			return 0, fmt.Errorf("create enrollment: %w", err)
		}
		return outcomeCreated, nil
	}

	// A local enrollment now observed in the LMS no longer needs pushing.
	if e.Status != domain.EnrollmentDropped && e.SyncStatus != domain.SyncSynced {
		e.SyncStatus = domain.SyncSynced
		e.LastSyncError = ""
		e.LastSyncedAt = domain.TimePtr(now)
		if err := r.store.UpdateEnrollment(ctx, e); err != nil {
			return 0, fmt.Errorf("update enrollment %s: %w", e.ID, err)
		}
		return outcomeUpdated, nil
	}
	if userChanged {
		return outcomeUpdated, nil
	}
	return outcomeSkipped, nil
}

// upsertUser resolves ru, creating it with the normalized role when unknown
// and escalating the stored role when the listing shows a higher one.
func (r *EnrollmentReconciler) upsertUser(ctx context.Context, ru lms.User) (*domain.User, bool, error) {
	unlock := r.userLocks.Lock(ru.ID)
	defer unlock()

	role := NormalizeRoles(ru.Roles, r.policy)
	m, err := r.resolver.ResolveUser(ctx, ru)
	if err != nil {
		return nil, false, err
	}
	if m.IsNew {
		u, err := createUser(ctx, r.store, ru, role, r.now())
		switch {
		case store.IsDuplicate(err):
			// Another remote id with the same email won the insert.
			r.log.Debug("user created concurrently, resolving again", "remote_id", ru.ID)
			if m, err = r.resolver.ResolveUser(ctx, ru); err != nil {
				return nil, false, err
			}
			if m.IsNew {
				return nil, false, fmt.Errorf("user %d still unresolved after duplicate insert", ru.ID)
			}
		case err != nil:
			return nil, false, err
		default:
			r.log.Debug("user created from enrollment", "remote_id", ru.ID, "user_id", u.ID, "role", role)
			return u, true, nil
		}
	}

	u := m.User
	next, escalated := upgradeRole(u.Role, role)
	if !escalated {
		return u, m.Linked, nil
	}
	r.log.Info("user role escalated", "user_id", u.ID, "from", u.Role, "to", next)
	u.Role = next
	u.LastSyncedAt = domain.TimePtr(r.now())
	if err := r.store.UpdateUser(ctx, u); err != nil {
		return nil, false, fmt.Errorf("update role of user %s: %w", u.ID, err)
	}
	return u, true, nil
}

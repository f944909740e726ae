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

// CompletionReconciler pulls completion state for every enrolled enrollment
// whose user and course are linked.
type CompletionReconciler struct {
	remote  Remote
	store   store.Store
	workers int
	now     func() time.Time
	log     *logger.Logger
}

func NewCompletionReconciler(remote Remote, st store.Store, workers int, now func() time.Time, log *logger.Logger) *CompletionReconciler {
	return &CompletionReconciler{
		remote:  remote,
		store:   st,
		workers: workers,
		now:     now,
		log:     log.With("component", "completion_reconciler"),
	}
}

func (r *CompletionReconciler) Run(ctx context.Context) Report {
	start := time.Now()
	rep := newReport(EntityCompletions)
	defer func() { rep.Duration = time.Since(start) }()

	candidates, err := r.store.ListCompletionCandidates(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("list completion candidates: %w", err)
		r.log.Error("completion candidate listing failed", "error", err)
		return rep
	}

	groups := groupByCourse(candidates)
	perCourse, errs := concurrency.ProcessParallel(ctx, groups, concurrency.ParallelOptions{MaxWorkers: r.workers},
		func(ctx context.Context, _ int, g []store.CompletionCandidate) (Report, error) {
			return r.reconcileCourse(ctx, g), nil
		})
	for _, cr := range perCourse {
		rep.Merge(cr)
	}
	if len(errs) > 0 && rep.Err == nil {
		rep.Err = errs[0]
	}

	r.log.Info("completions reconciled", "courses", len(groups), "examined", rep.Examined,
		"updated", rep.Updated, "skipped", rep.Skipped, "errored", rep.Errored)
	return rep
}

// groupByCourse keeps first-seen course order.
func groupByCourse(cands []store.CompletionCandidate) [][]store.CompletionCandidate {
	index := map[int64]int{}
	var groups [][]store.CompletionCandidate
	for _, c := range cands {
		i, ok := index[c.CourseRemoteID]
		if !ok {
			i = len(groups)
			index[c.CourseRemoteID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}

// reconcileCourse processes the candidates of one course. Once the course
// reports completion tracking as unsupported the remaining candidates are
// skipped without calling the LMS again.
func (r *CompletionReconciler) reconcileCourse(ctx context.Context, cands []store.CompletionCandidate) Report {
	rep := newReport(EntityCompletions)
	unsupported := false

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		rep.Examined++
		if unsupported {
			rep.Skipped++
			continue
		}

		comp, err := r.remote.GetCompletion(ctx, cand.CourseRemoteID, cand.UserRemoteID)
		switch {
		case lms.IsUnsupported(err):
			r.log.Info("completion tracking unavailable for course", "course_remote_id", cand.CourseRemoteID, "error", err)
			unsupported = true
			rep.Skipped++
			continue
		case lms.IsNotFound(err):
			rep.Skipped++
			continue
		case err != nil:
			r.log.Warn("completion fetch failed", "enrollment_id", cand.Enrollment.ID,
				"course_remote_id", cand.CourseRemoteID, "user_remote_id", cand.UserRemoteID,
				"op", "get_completion", "error", err)
			rep.fail("completion course %d user %d: %v", cand.CourseRemoteID, cand.UserRemoteID, err)
			r.recordError(ctx, cand.Enrollment, err)
			continue
		}

		changed, err := r.apply(ctx, cand.Enrollment, comp)
		if err != nil {
			r.log.Warn("completion update failed", "enrollment_id", cand.Enrollment.ID, "op", "update_enrollment", "error", err)
			rep.fail("completion enrollment %s: %v", cand.Enrollment.ID, err)
			continue
		}
		if changed {
			rep.Updated++
		} else {
			rep.Skipped++
		}
	}
	return rep
}

func (r *CompletionReconciler) apply(ctx context.Context, e *domain.Enrollment, comp lms.Completion) (bool, error) {
	if !comp.Completed || !e.Status.CanTransitionTo(domain.EnrollmentCompleted) || e.Status == domain.EnrollmentCompleted {
		return r.clearError(ctx, e)
	}
	now := r.now()
	completedAt := now
	if comp.CompletedAt != nil {
		completedAt = comp.CompletedAt.UTC()
	}
	e.Status = domain.EnrollmentCompleted
	e.Progress = 100
	e.CompletedAt = domain.TimePtr(completedAt)
	e.SyncStatus = domain.SyncSynced
	e.LastSyncError = ""
	e.LastSyncedAt = domain.TimePtr(now)
	if err := r.store.UpdateEnrollment(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

// clearError drops an error left by an earlier failed fetch. It writes
// only when there is something to clear.
func (r *CompletionReconciler) clearError(ctx context.Context, e *domain.Enrollment) (bool, error) {
	if e.LastSyncError == "" {
		return false, nil
	}
	e.LastSyncError = ""
	if err := r.store.UpdateEnrollment(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

// recordError keeps the failure visible on the enrollment. Sync status is
// left alone so an inbound failure never queues an outbound push.
func (r *CompletionReconciler) recordError(ctx context.Context, e *domain.Enrollment, cause error) {
	e.LastSyncError = cause.Error()
	if err := r.store.UpdateEnrollment(ctx, e); err != nil {
		r.log.Warn("recording completion error failed", "enrollment_id", e.ID, "error", err)
	}
}

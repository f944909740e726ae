package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"portal-sync/internal/platform/logger"
	"portal-sync/internal/store"
)

// Recorder observes finished reports and passes, typically to export
// metrics.
type Recorder interface {
	ObserveReport(kind Kind, r Report)
	ObservePass(s Summary, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReport(Kind, Report)  {}
func (nopRecorder) ObservePass(Summary, error) {}

type Options struct {
	AuthMethod       string
	RolePolicy       RolePolicy
	Workers          int
	OutboundBatch    int
	OutboundCooldown time.Duration
	CourseDefaults   CourseDefaults
	RoleIDs          RoleIDs
	// Clock defaults to time.Now. Times are always stored in UTC.
	Clock    func() time.Time
	Recorder Recorder
}

// Engine sequences the reconcilers. It does not guard against concurrent
// invocation; callers serialize InitialSync and PeriodicSync.
type Engine struct {
	store       store.Store
	courses     *CourseReconciler
	users       *UserReconciler
	enrollments *EnrollmentReconciler
	completions *CompletionReconciler
	outbound    *Propagator
	now         func() time.Time
	rec         Recorder
	log         *logger.Logger

	mu    stdsync.Mutex
	state SyncState
}

func NewEngine(remote Remote, st store.Store, opts Options, log *logger.Logger) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }
	if opts.AuthMethod == "" {
		opts.AuthMethod = "manual"
	}
	if opts.RolePolicy == "" {
		opts.RolePolicy = RolePolicyHighest
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	resolver := NewResolver(st, now)
	return &Engine{
		store:       st,
		courses:     NewCourseReconciler(remote, st, resolver, opts.CourseDefaults, now, log),
		users:       NewUserReconciler(remote, st, resolver, opts.AuthMethod, now, log),
		enrollments: NewEnrollmentReconciler(remote, st, resolver, opts.RolePolicy, opts.Workers, now, log),
		completions: NewCompletionReconciler(remote, st, opts.Workers, now, log),
		outbound:    NewPropagator(remote, st, opts.RoleIDs, opts.OutboundBatch, opts.OutboundCooldown, now, log),
		now:         now,
		rec:         opts.Recorder,
		log:         log.With("component", "orchestrator"),
		state:       SyncState{Status: PhaseIdle},
	}
}

type step func(ctx context.Context) []Report

func single(run func(context.Context) Report) step {
	return func(ctx context.Context) []Report { return []Report{run(ctx)} }
}

func (e *Engine) inbound() []step {
	return []step{
		single(e.courses.Run),
		single(e.users.Run),
		single(e.enrollments.Run),
		single(e.completions.Run),
	}
}

// InitialSync pulls courses, users, enrollments and completions. Nothing is
// pushed to the LMS.
func (e *Engine) InitialSync(ctx context.Context) (Summary, error) {
	return e.run(ctx, KindInitial, e.inbound())
}

// PeriodicSync runs the inbound passes followed by the outbound push.
func (e *Engine) PeriodicSync(ctx context.Context) (Summary, error) {
	steps := append(e.inbound(), func(ctx context.Context) []Report {
		users, enrollments := e.outbound.Run(ctx)
		return []Report{users, enrollments}
	})
	return e.run(ctx, KindPeriodic, steps)
}

// run executes steps in order. The returned error only carries pass-level
// failures; per-entity failures live in the reports.
func (e *Engine) run(ctx context.Context, kind Kind, steps []step) (Summary, error) {
	sum := Summary{Kind: kind, StartedAt: e.now()}
	e.begin(kind, sum.StartedAt)
	e.log.Info("sync pass started", "kind", kind)

	var errs []error
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			if !errors.Is(errors.Join(errs...), err) {
				errs = append(errs, err)
			}
			break
		}
		for _, rep := range st(ctx) {
			sum.Reports = append(sum.Reports, rep)
			e.rec.ObserveReport(kind, rep)
			if rep.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", rep.Entity, rep.Err))
			}
		}
	}
	sum.FinishedAt = e.now()
	err := errors.Join(errs...)

	e.finish(sum, err)
	e.rec.ObservePass(sum, err)

	total := sum.Totals()
	kv := []any{"kind", kind, "duration", total.Duration, "examined", total.Examined, "created", total.Created,
		"updated", total.Updated, "skipped", total.Skipped, "errored", total.Errored}
	if err != nil {
		e.log.Error("sync pass finished with errors", append(kv, "error", err)...)
	} else {
		e.log.Info("sync pass finished", kv...)
	}
	return sum, err
}

func (e *Engine) begin(kind Kind, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = PhaseRunning
	e.state.Kind = kind
	e.state.StartedAt = &at
	e.state.FinishedAt = nil
}

func (e *Engine) finish(sum Summary, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	finished := sum.FinishedAt
	e.state.FinishedAt = &finished
	e.state.LastSummary = &sum
	if err != nil {
		e.state.Status = PhaseFailed
		e.state.LastError = err.Error()
		return
	}
	e.state.Status = PhaseSucceeded
	e.state.LastError = ""
	if e.state.LastSuccess == nil {
		e.state.LastSuccess = map[Kind]time.Time{}
	}
	e.state.LastSuccess[sum.Kind] = finished
}

// State returns a copy of the current SyncState.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// GetSyncStatus combines per-entity totals from the store with the pass
// state.
func (e *Engine) GetSyncStatus(ctx context.Context) (StatusReport, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("sync status: %w", err)
	}
	return StatusReport{State: e.State(), Entities: stats}, nil
}

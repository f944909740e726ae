package scheduler

import (
	"context"
	"time"

	"portal-sync/internal/platform/logger"
	"portal-sync/internal/sync"
)

// Syncer is the engine surface the runner drives.
type Syncer interface {
	InitialSync(ctx context.Context) (sync.Summary, error)
	PeriodicSync(ctx context.Context) (sync.Summary, error)
}

// AfterPass is called after every pass that ran.
type AfterPass func(ctx context.Context, sum sync.Summary, err error)

// Runner runs InitialSync once, then PeriodicSync on every tick. A tick
// that finds the guard held is skipped, never queued.
type Runner struct {
	syncer   Syncer
	guard    Guard
	interval time.Duration
	after    []AfterPass
	log      *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(s Syncer, g Guard, interval time.Duration, log *logger.Logger) *Runner {
	if g == nil {
		g = &LocalGuard{}
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Runner{
		syncer:   s,
		guard:    g,
		interval: interval,
		log:      log.With("component", "scheduler"),
	}
}

// OnPass registers a hook. Not safe to call after Start.
func (r *Runner) OnPass(fn AfterPass) {
	r.after = append(r.after, fn)
}

// Start launches the background loop.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.log.Info("scheduler started", "interval", r.interval.String())

		r.RunOnce(ctx, sync.KindInitial)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.log.Info("scheduler stopped")
				return
			case <-ticker.C:
				r.RunOnce(ctx, sync.KindPeriodic)
			}
		}
	}()
}

// Stop cancels the loop and waits for a running pass to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// RunOnce runs one pass of kind under the guard. ran is false when the
// guard was busy or could not be acquired.
func (r *Runner) RunOnce(ctx context.Context, kind sync.Kind) (sum sync.Summary, ran bool, err error) {
	release, ok, err := r.guard.TryAcquire(ctx)
	if err != nil {
		r.log.Error("sync guard unavailable, pass skipped", "kind", kind, "error", err)
		return sync.Summary{}, false, err
	}
	if !ok {
		r.log.Warn("sync already running, pass skipped", "kind", kind)
		return sync.Summary{}, false, nil
	}
	defer release()

	if kind == sync.KindInitial {
		sum, err = r.syncer.InitialSync(ctx)
	} else {
		sum, err = r.syncer.PeriodicSync(ctx)
	}
	for _, fn := range r.after {
		fn(ctx, sum, err)
	}
	return sum, true, err
}

package concurrency

import (
	"context"
	"sync"
)

// ParallelOptions configures ProcessParallel.
type ParallelOptions struct {
	// MaxWorkers bounds concurrent calls to the item function. Values below
	// one mean sequential processing.
	MaxWorkers int
}

type indexed[R any] struct {
	index  int
	result R
	err    error
}

// ProcessParallel calls itemFunc for every item on at most opts.MaxWorkers
// goroutines and returns the results in input order. Items not started before
// ctx is cancelled keep the zero value of R and contribute ctx.Err() once to
// the returned errors.
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int, len(items))
	for i := range items {
		jobs <- i
	}
	close(jobs)

	results := make(chan indexed[R], len(items))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				r, err := itemFunc(ctx, i, items[i])
				results <- indexed[R]{index: i, result: r, err: err}
			}
		}()
	}
	wg.Wait()
	close(results)

	out := make([]R, len(items))
	var errs []error
	done := 0
	for res := range results {
		done++
		if res.err != nil {
			errs = append(errs, res.err)
		}
		out[res.index] = res.result
	}
	if done < len(items) && ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return out, errs
}

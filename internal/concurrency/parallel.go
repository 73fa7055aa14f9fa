package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
)

// ParallelOptions configures ProcessParallel.
type ParallelOptions struct {
	// MaxWorkers is the pool size; the pool never exceeds len(items).
	MaxWorkers int
}

func DefaultOptions() ParallelOptions {
	return ParallelOptions{
		MaxWorkers: 4,
	}
}

// ProcessParallel runs itemFunc over items on a fixed pool of workers.
// Each worker claims the next unprocessed index from a shared counter, so at
// most MaxWorkers calls are in flight.
//
// Both returned slices have len(items) and are indexed like items: errs[i] is
// the error for items[i] or nil. Items never started because ctx ended get
// ctx.Err().
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = DefaultOptions().MaxWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= len(items) {
					return
				}
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				// each index is owned by exactly one worker
				results[i], errs[i] = itemFunc(ctx, i, items[i])
			}
		}()
	}
	wg.Wait()

	return results, errs
}

// FirstError returns the first non-nil error, if any.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

package concurrency

import (
	"context"
	"sync"
)

// ParallelOptions configures ProcessParallel.
type ParallelOptions struct {
	// MaxWorkers caps the number of concurrent calls.
	MaxWorkers int
}

func DefaultOptions() ParallelOptions {
	return ParallelOptions{
		MaxWorkers: 4,
	}
}

func (o ParallelOptions) workers(n int) int {
	w := o.MaxWorkers
	if w <= 0 {
		w = DefaultOptions().MaxWorkers
	}
	return min(w, n)
}

// ProcessParallel calls itemFunc for every item on a bounded worker pool
// and returns the results in input order.
//
// Errors are returned in completion order. Once ctx is done, items not yet
// started are skipped and each contributes ctx.Err(); their result slot
// keeps the zero value.
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	type outcome struct {
		index  int
		result R
		err    error
	}

	jobs := make(chan int, len(items))
	for i := range items {
		jobs <- i
	}
	close(jobs)

	outcomes := make(chan outcome, len(items))

	var wg sync.WaitGroup
	for range opts.workers(len(items)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes <- outcome{index: i, err: err}
					continue
				}
				r, err := itemFunc(ctx, i, items[i])
				outcomes <- outcome{index: i, result: r, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]R, len(items))
	var errs []error
	for o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		results[o.index] = o.result
	}
	return results, errs
}

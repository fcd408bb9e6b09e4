// Package batch fans independent decode jobs out over a bounded worker
// pool, per spec §4.6: results preserve input order and a single job's
// failure never cancels its peers.
//
// This deliberately does not use [golang.org/x/sync/errgroup]:
// errgroup.Group cancels every other goroutine's context on the first
// error, which is exactly the cross-job cancellation spec §4.6/§7 forbids.
// [golang.org/x/sync/semaphore.Weighted], from the same module, bounds
// concurrency without that coupling.
package batch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Job is one independent unit of batch work, identified by its index in the
// submitted slice so results can be reassembled in input order.
type Job[T any] func(ctx context.Context) (T, error)

// Result pairs a job's output with any error it returned. Value holds
// whatever the job returned, even when Err is non-nil.
type Result[T any] struct {
	Value T
	Err   error
}

// Run submits jobs to a pool of at most workers concurrent goroutines and
// returns one [Result] per job, in the same order as jobs. At most workers
// jobs run at any instant; a job's failure is recorded in its own Result
// without affecting any other job (spec §4.6, §7). Run itself only returns
// early if ctx is cancelled before all jobs are dispatched — jobs already
// running are allowed to finish.
func Run[T any](ctx context.Context, workers int, jobs []Job[T]) ([]Result[T], error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result[T], len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	sem := semaphore.NewWeighted(int64(workers))
	done := make(chan struct{}, len(jobs))

	dispatched := 0
	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return results, err
		}
		dispatched++
		go func(i int, job Job[T]) {
			defer sem.Release(1)
			v, err := job(ctx)
			results[i] = Result[T]{Value: v, Err: err}
			done <- struct{}{}
		}(i, job)
	}

	for i := 0; i < dispatched; i++ {
		<-done
	}
	return results, nil
}

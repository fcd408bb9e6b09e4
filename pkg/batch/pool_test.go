package batch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/beamctc/pkg/batch"
)

func TestRunPreservesInputOrder(t *testing.T) {
	jobs := make([]batch.Job[int], 10)
	for i := range jobs {
		i := i
		jobs[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return i, nil
		}
	}

	results, err := batch.Run(context.Background(), 4, jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		if r.Value != i {
			t.Errorf("results[%d].Value = %d, want %d", i, r.Value, i)
		}
	}
}

func TestRunIsolatesJobFailures(t *testing.T) {
	boom := errors.New("boom")
	jobs := []batch.Job[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, boom },
		func(ctx context.Context) (int, error) { return 3, nil },
	}

	results, err := batch.Run(context.Background(), 2, jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err != nil || results[0].Value != 1 {
		t.Errorf("results[0] = %+v, want {1 nil}", results[0])
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("results[1].Err = %v, want boom", results[1].Err)
	}
	if results[2].Err != nil || results[2].Value != 3 {
		t.Errorf("results[2] = %+v, want {3 nil} (peer failure must not affect it)", results[2])
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 3
	var current, maxSeen int32
	jobs := make([]batch.Job[struct{}], 20)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) (struct{}, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&current, -1)
			return struct{}{}, nil
		}
	}

	if _, err := batch.Run(context.Background(), workers, jobs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxSeen > workers {
		t.Errorf("observed %d concurrent jobs, want <= %d", maxSeen, workers)
	}
}

func TestRunEmptyJobs(t *testing.T) {
	results, err := batch.Run[int](context.Background(), 4, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}

func TestRunRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := []batch.Job[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
	}
	_, err := batch.Run(ctx, 1, jobs)
	if err == nil {
		t.Fatal("Run with a cancelled context should return an error before dispatching")
	}
}

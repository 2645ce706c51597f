package ocr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

// runner fans independent attempts out over a bounded pool. Each attempt writes
// to its own index, so callers aggregate in index order whatever the completion order.
type runner struct {
	pool *ants.Pool
}

func newRunner(workers int) (*runner, error) {
	if workers <= 1 {
		return &runner{}, nil
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &runner{pool: pool}, nil
}

func (r *runner) run(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if r.pool == nil || n <= 1 {
		for i := 0; i < n; i++ {
			fn(ctx, i)
		}
		return
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		idx := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(ctx, idx)
		}
		if err := r.pool.Submit(task); err != nil {
			// pool released or overloaded: run inline
			task()
		}
	}
	wg.Wait()
}

func (r *runner) release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// errAbandoned marks a recognizer call that outlived its deadline and still runs.
var errAbandoned = errors.New("recognizer call abandoned")

// withDeadline bounds a blocking recognizer call. The engine cannot be
// interrupted, so on timeout the call keeps running outside the pool and its
// result is dropped. running, when set, counts such calls until they return.
func withDeadline[T any](ctx context.Context, d time.Duration, running *atomic.Int64, call func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	type result struct {
		v   T
		err error
	}
	const (
		pending = iota
		delivered
		dropped
	)
	var state atomic.Int32
	ch := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		if !state.CompareAndSwap(pending, delivered) {
			if running != nil {
				running.Add(-1)
			}
			return
		}
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		if running != nil {
			running.Add(1)
		}
		if state.CompareAndSwap(pending, dropped) {
			var zero T
			return zero, fmt.Errorf("%w: %w", errAbandoned, ctx.Err())
		}
		if running != nil {
			running.Add(-1)
		}
		// finished in the same instant
		r := <-ch
		return r.v, r.err
	}
}

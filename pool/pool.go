// Package pool runs independent jobs on a fixed number of workers while
// keeping results aligned with their inputs.
package pool

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one item. Exactly one of Value or Err is
// meaningful.
type Result[R any] struct {
	Value R
	Err   error
}

// Run processes items with min(concurrency, len(items)) workers. Each worker
// claims the next unprocessed index until none remain. The returned slice
// has one Result per item, at the item's index, regardless of completion
// order. A failing or panicking item records its error in its own slot and
// never stops the other workers.
//
// Once ctx is done, items not yet claimed are recorded with ctx.Err()
// instead of being processed.
func Run[T, R any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, idx int, item T) (R, error)) []Result[R] {
	out := make([]Result[R], len(items))
	if len(items) == 0 {
		return out
	}
	workers := min(max(concurrency, 1), len(items))

	var next atomic.Int64
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for {
				idx := int(next.Add(1) - 1)
				if idx >= len(items) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					out[idx] = Result[R]{Err: err}
					continue
				}
				out[idx] = runOne(ctx, idx, items[idx], fn)
			}
		})
	}
	_ = g.Wait()
	return out
}

func runOne[T, R any](ctx context.Context, idx int, item T, fn func(context.Context, int, T) (R, error)) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[R]{Err: fmt.Errorf("pool: item %d panicked: %v", idx, r)}
		}
	}()
	v, err := fn(ctx, idx, item)
	if err != nil {
		return Result[R]{Err: err}
	}
	return Result[R]{Value: v}
}

package pagination

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOut calls fn once per item, all concurrently, and waits for every call.
// Results keep the order of items. Calls are not cancelled when another call
// fails; fn reports failure through its result.
func FanOut[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) R) []R {
	results := make([]R, len(items))
	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			results[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

package negotiation

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs task once per item with at most limit in flight (no bound when
// limit <= 0) and returns once every task has settled. errs[i] is the error of
// items[i]; one task failing never cancels or hides the others.
func fanOut[T any](ctx context.Context, limit int, items []T, task func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			errs[i] = task(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

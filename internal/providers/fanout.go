package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultFanOutLimit bounds concurrent per-item provider calls.
const DefaultFanOutLimit = 20

// FanOut runs fn for every item with at most limit calls in flight, each
// under its own timeout. A failed or timed-out item never cancels the
// others: results holds the successes in input order and errs one error per
// failed item.
func FanOut[T, R any](ctx context.Context, items []T, limit int, timeout time.Duration, fn func(ctx context.Context, item T) (R, error)) (results []R, errs []error) {
	if limit < 1 {
		limit = DefaultFanOutLimit
	}
	out := make([]R, len(items))
	failed := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			itemCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			r, err := fn(itemCtx, item)
			if err != nil {
				failed[i] = fmt.Errorf("item %d: %w", i, err)
				return nil
			}
			out[i] = r
			return nil
		})
	}
	_ = g.Wait()

	for i := range items {
		if failed[i] != nil {
			errs = append(errs, failed[i])
			continue
		}
		results = append(results, out[i])
	}
	return results, errs
}

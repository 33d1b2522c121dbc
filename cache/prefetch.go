package cache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Prefetch warms keys through Get with bounded concurrency and returns the
// first error. Fetches already issued keep running after a failure.
func (c *RequestCache[V]) Prefetch(ctx context.Context, keys []string, opts ...GetOption) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.prefetchConcurrency)

	for _, key := range keys {
		g.Go(func() error {
			_, err := c.Get(gCtx, key, opts...)
			return err
		})
	}

	return g.Wait()
}

package client

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Arun445/simpleperf/internal/config"
)

// RunStreams starts streams independent engines on cfg and waits for all of
// them. A failing stream does not stop the others; the first error is
// returned once every stream has finished. results[i] belongs to stream i.
func RunStreams(ctx context.Context, cfg *config.TransferConfig, streams int, opts ...Option) ([][]Result, error) {
	if streams < 1 {
		return nil, config.ErrInvalidStreams
	}

	results := make([][]Result, streams)
	var g errgroup.Group
	for i := 0; i < streams; i++ {
		i := i
		engine := NewEngine(cfg, append(opts[:len(opts):len(opts)], withStream(i))...)
		g.Go(func() error {
			res, err := engine.Run(ctx)
			results[i] = res
			if err != nil {
				return errors.Wrapf(err, "stream %d", i)
			}
			return nil
		})
	}
	return results, g.Wait()
}

package strategy

import (
	"context"

	"github.com/npipeline/engine/pipe"
)

// ApplyFunc is the shape of a compiled 1-to-1 transform's Apply
// function, shared by every strategy wrapper in this package.
type ApplyFunc[In, Out any] func(ctx context.Context, item In) (Out, error)

// StreamApplyFunc is the shape of a compiled stream-transform's Apply
// function: it consumes one pipe and lazily produces another.
type StreamApplyFunc[In, Out any] func(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error)

// Sequential is the minimum-overhead strategy: it calls apply directly
// for each item, preserving input order by construction. There is no
// suspension-handle to elide in Go the way the source's
// synchronous-completion fast path does for its Task-based runtime —
// a direct call already is the fast path here.
func Sequential[In, Out any](apply ApplyFunc[In, Out]) StreamApplyFunc[In, Out] {
	return func(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error) {
		return pipe.FromFunc(in.StreamName()+"/sequential", func(ctx context.Context) (Out, error) {
			var zero Out
			for {
				item, err := in.Next(ctx)
				if err != nil {
					return zero, err
				}
				out, err := apply(ctx, item)
				if isItemSkipped(err) {
					continue
				}
				return out, err
			}
		}, in.Dispose), nil
	}
}

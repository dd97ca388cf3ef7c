package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/npipeline/engine/errs"
	"github.com/npipeline/engine/pipe"
)

// errItemSkipped is returned internally by a retry-wrapped apply to
// tell the enclosing stream strategy (Sequential/Parallel) to drop the
// item and keep pulling, rather than surface it as a pipe error. It
// never escapes this package.
var errItemSkipped = errors.New("strategy: item skipped")

func isItemSkipped(err error) bool {
	return errors.Is(err, errItemSkipped)
}

// WithItemRetry wraps apply with the per-item retry loop of §4.5.1:
// on failure, nodeHandler decides Retry/Skip/DeadLetter/Fail; Retry
// waits opts.DelayStrategy.Delay(attempt) before trying again, bounded
// by opts.MaxItemRetries. nodeHandler may be nil, in which case every
// error is treated as Fail.
func WithItemRetry[In, Out any](nodeID string, apply ApplyFunc[In, Out], opts RetryOptions, nodeHandler errs.NodeErrorHandler[In], deadLetter errs.DeadLetterSink) ApplyFunc[In, Out] {
	return func(ctx context.Context, item In) (Out, error) {
		var zero Out
		var lastErr error
		for attempt := 1; ; attempt++ {
			result, err := apply(ctx, item)
			if err == nil {
				return result, nil
			}
			lastErr = err
			if errs.IsCancellation(err) {
				return zero, err
			}
			if nodeHandler == nil {
				return zero, err
			}
			decision, decErr := nodeHandler.Handle(ctx, nodeID, item, err, attempt)
			if decErr != nil {
				return zero, decErr
			}
			switch decision {
			case errs.Retry:
				if attempt > opts.MaxItemRetries || !opts.shouldRetry(err) {
					return zero, fmt.Errorf("node %q: item retries exhausted after %d attempts: %w", nodeID, attempt, lastErr)
				}
				if opts.DelayStrategy != nil {
					if werr := wait(ctx, opts.DelayStrategy.Delay(attempt)); werr != nil {
						return zero, werr
					}
				}
				continue
			case errs.Skip:
				return zero, errItemSkipped
			case errs.DeadLetter:
				if deadLetter != nil {
					_ = deadLetter.Send(ctx, errs.NewDeadLetterRecord(item, err, nodeID, attempt))
				}
				return zero, errItemSkipped
			case errs.Fail:
				return zero, err
			default:
				return zero, err
			}
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return pipe.ErrCancelled
	case <-t.C:
		return nil
	}
}

// Resilient wraps an inner stream strategy (typically Sequential or
// Parallel, already closed over a retry-wrapped apply built with
// WithItemRetry) with node-level restart semantics. Every item the
// inner strategy reads from in is also recorded into a bounded replay
// buffer; when the inner strategy's output pipe surfaces a non-EOF,
// non-cancellation error, pipelineHandler decides whether to restart
// the node from the replay buffer, continue without it, or fail the
// whole run.
func Resilient[In, Out any](nodeID string, opts RetryOptions, inner StreamApplyFunc[In, Out], pipelineHandler errs.PipelineErrorHandler) StreamApplyFunc[In, Out] {
	return func(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}

		r := &resilientRun[In, Out]{
			nodeID:   nodeID,
			opts:     opts,
			inner:    inner,
			handler:  pipelineHandler,
			source:   in,
			restarts: 0,
			total:    0,
		}
		if opts.MaxMaterializedItems > 0 {
			r.buffer = newRingBuffer[In](opts.MaxMaterializedItems)
		}

		if _, err := r.start(ctx); err != nil {
			return nil, err
		}
		return pipe.FromFunc(in.StreamName()+"/resilient", func(ctx context.Context) (Out, error) {
			return r.next(ctx)
		}, func(ctx context.Context) error {
			return in.Dispose(ctx)
		}), nil
	}
}

// resilientRun holds the mutable state of one Resilient pipe instance:
// the currently active inner output pipe, the materialization buffer,
// and the restart counters §4.5.1 requires.
type resilientRun[In, Out any] struct {
	mu sync.Mutex

	nodeID  string
	opts    RetryOptions
	inner   StreamApplyFunc[In, Out]
	handler errs.PipelineErrorHandler
	source  pipe.Pipe[In]
	buffer  *ringBuffer[In]

	current  pipe.Pipe[Out]
	restarts int // restarts for the current materialized run
	total    int // MaxSequentialNodeAttempts-bounded global counter
	done     bool
}

func (r *resilientRun[In, Out]) start(ctx context.Context) (pipe.Pipe[Out], error) {
	tee := teeingPipe[In]{in: r.source, buffer: r.buffer}
	out, err := r.inner(ctx, tee)
	if err != nil {
		return nil, err
	}
	r.current = out
	return out, nil
}

func (r *resilientRun[In, Out]) next(ctx context.Context) (Out, error) {
	var zero Out
	for {
		r.mu.Lock()
		if r.done {
			r.mu.Unlock()
			return zero, pipe.EOF
		}
		current := r.current
		r.mu.Unlock()

		item, err := current.Next(ctx)
		if err == nil {
			return item, nil
		}
		if pipe.IsEOF(err) {
			r.mu.Lock()
			r.done = true
			if r.buffer != nil {
				r.buffer.Reset()
			}
			r.mu.Unlock()
			return zero, pipe.EOF
		}
		if errs.IsCancellation(err) {
			return zero, err
		}

		recovered, rerr := r.recover(ctx, err)
		if rerr != nil {
			return zero, rerr
		}
		if recovered == nil {
			r.mu.Lock()
			r.done = true
			r.mu.Unlock()
			return zero, pipe.EOF
		}
		r.mu.Lock()
		r.current = recovered
		r.mu.Unlock()
	}
}

// recover consults the pipeline error handler after a node failure. A
// nil, nil return means the node was detached cleanly
// (ContinueWithoutNode): the caller should treat the pipe as exhausted.
func (r *resilientRun[In, Out]) recover(ctx context.Context, nodeErr error) (pipe.Pipe[Out], error) {
	if r.handler == nil {
		return nil, nodeErr
	}
	decision, err := r.handler.HandleNodeFailure(ctx, r.nodeID, nodeErr)
	if err != nil {
		return nil, err
	}
	switch decision {
	case errs.ContinueWithoutNode:
		return nil, nil
	case errs.FailPipeline:
		return nil, nodeErr
	case errs.RestartNode:
		return r.restart(ctx, nodeErr)
	default:
		return nil, nodeErr
	}
}

func (r *resilientRun[In, Out]) restart(ctx context.Context, nodeErr error) (pipe.Pipe[Out], error) {
	if r.buffer == nil {
		return nil, &errs.ConfigurationError{NodeID: r.nodeID, Missing: "MaxMaterializedItems (required for RestartNode)"}
	}
	if r.opts.MaxNodeRestartAttempts <= 0 {
		return nil, &errs.ConfigurationError{NodeID: r.nodeID, Missing: "MaxNodeRestartAttempts (required for RestartNode)"}
	}

	r.mu.Lock()
	r.restarts++
	r.total++
	restarts, total := r.restarts, r.total
	r.mu.Unlock()

	if restarts > r.opts.MaxNodeRestartAttempts {
		return nil, fmt.Errorf("node %q: node restart attempts exhausted: %w", r.nodeID, nodeErr)
	}
	if r.opts.MaxSequentialNodeAttempts > 0 && total > r.opts.MaxSequentialNodeAttempts {
		return nil, fmt.Errorf("node %q: exceeded MaxSequentialNodeAttempts: %w", r.nodeID, nodeErr)
	}

	replay := r.buffer.Snapshot()
	replayPipe := pipe.FromSlice(r.source.StreamName()+"/replay", replay)
	continuation := &concatPipe[In]{first: replayPipe, second: r.source}
	tee := teeingPipe[In]{in: continuation, buffer: r.buffer}
	return r.inner(ctx, tee)
}

// teeingPipe forwards items from in while also recording each one into
// buffer (when non-nil), implementing the materialization side of
// node restart replay.
type teeingPipe[T any] struct {
	in     pipe.Pipe[T]
	buffer *ringBuffer[T]
}

func (t teeingPipe[T]) StreamName() string    { return t.in.StreamName() }
func (t teeingPipe[T]) Count() (int, bool)    { return t.in.Count() }
func (t teeingPipe[T]) Dispose(ctx context.Context) error {
	return t.in.Dispose(ctx)
}

func (t teeingPipe[T]) Next(ctx context.Context) (T, error) {
	item, err := t.in.Next(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if t.buffer != nil {
		t.buffer.Push(item)
	}
	return item, nil
}

// concatPipe drains first, then second. Used to resume a restarted
// node's input from a replayed snapshot followed by the original,
// still-live source pipe.
type concatPipe[T any] struct {
	first   pipe.Pipe[T]
	second  pipe.Pipe[T]
	onFirst bool
	started bool
}

func (c *concatPipe[T]) StreamName() string { return c.second.StreamName() }
func (c *concatPipe[T]) Count() (int, bool) { return 0, false }
func (c *concatPipe[T]) Dispose(ctx context.Context) error {
	var firstErr error
	if err := c.first.Dispose(ctx); err != nil {
		firstErr = err
	}
	if err := c.second.Dispose(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *concatPipe[T]) Next(ctx context.Context) (T, error) {
	if !c.started {
		c.started = true
		c.onFirst = true
	}
	if c.onFirst {
		item, err := c.first.Next(ctx)
		if err == nil {
			return item, nil
		}
		if !pipe.IsEOF(err) {
			var zero T
			return zero, err
		}
		c.onFirst = false
	}
	return c.second.Next(ctx)
}

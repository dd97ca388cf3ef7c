package strategy

import (
	"context"
	"time"

	"github.com/npipeline/engine/pipe"
)

// Batching accumulates items into batches of at most cfg.Size or
// until cfg.Timeout elapses since the first item in the pending
// batch arrived, whichever comes first. Item order is preserved both
// within a batch and across batches.
func Batching[T any](cfg BatchConfig) StreamApplyFunc[T, []T] {
	size := cfg.Size
	if size < 1 {
		size = 1
	}

	return func(ctx context.Context, in pipe.Pipe[T]) (pipe.Pipe[[]T], error) {
		out := make(chan []T, 1)
		errCh := make(chan error, 1)
		runCtx, cancel := context.WithCancel(ctx)

		go func() {
			defer close(out)
			batch := make([]T, 0, size)
			var timer *time.Timer
			var timerC <-chan time.Time
			resetTimer := func() {
				if cfg.Timeout <= 0 {
					return
				}
				if timer == nil {
					timer = time.NewTimer(cfg.Timeout)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(cfg.Timeout)
				}
				timerC = timer.C
			}
			flush := func() {
				if len(batch) == 0 {
					return
				}
				emitted := make([]T, len(batch))
				copy(emitted, batch)
				batch = batch[:0]
				select {
				case out <- emitted:
				case <-runCtx.Done():
				}
			}

			items := make(chan T)
			pullErrCh := make(chan error, 1)
			go func() {
				defer close(items)
				for {
					item, err := in.Next(runCtx)
					if err != nil {
						if !pipe.IsEOF(err) {
							pullErrCh <- err
						}
						return
					}
					select {
					case items <- item:
					case <-runCtx.Done():
						return
					}
				}
			}()

			for {
				if timerC == nil && cfg.Timeout > 0 && len(batch) > 0 {
					resetTimer()
				}
				select {
				case <-runCtx.Done():
					return
				case item, ok := <-items:
					if !ok {
						flush()
						select {
						case err := <-pullErrCh:
							errCh <- err
						default:
						}
						return
					}
					if len(batch) == 0 {
						resetTimer()
					}
					batch = append(batch, item)
					if len(batch) >= size {
						flush()
						timerC = nil
					}
				case <-timerC:
					flush()
					timerC = nil
				}
			}
		}()

		dispose := func(context.Context) error {
			cancel()
			return in.Dispose(context.Background())
		}
		return pipe.FromChannel(in.StreamName()+"/batch", out, errCh, dispose), nil
	}
}

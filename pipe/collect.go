package pipe

import "context"

// Collect drains p into a slice. It stops on natural end of stream and
// returns any other error (including ErrCancelled) to the caller.
func Collect[T any](ctx context.Context, p Pipe[T]) ([]T, error) {
	var out []T
	if n, ok := p.Count(); ok && n > 0 {
		out = make([]T, 0, n)
	}
	for {
		item, err := p.Next(ctx)
		if err != nil {
			if IsEOF(err) {
				return out, nil
			}
			return out, err
		}
		out = append(out, item)
	}
}

// ForEach pulls every item from p and invokes fn, stopping at the
// first error fn returns or at natural end of stream.
func ForEach[T any](ctx context.Context, p Pipe[T], fn func(context.Context, T) error) error {
	for {
		item, err := p.Next(ctx)
		if err != nil {
			if IsEOF(err) {
				return nil
			}
			return err
		}
		if err := fn(ctx, item); err != nil {
			return err
		}
	}
}

// Drain discards every remaining item in p, observing cancellation.
// It is used by sinks/strategies that need to release an upstream
// producer without processing its remaining items (e.g. after a
// downstream failure so upstream goroutines are not left blocked on a
// full channel).
func Drain[T any](ctx context.Context, p Pipe[T]) {
	for {
		_, err := p.Next(ctx)
		if err != nil {
			return
		}
	}
}

package strategy

import (
	"context"

	"github.com/npipeline/engine/pipe"
)

// MergePolicy selects how a multi-inbound node (join/aggregate)
// combines its upstream pipes before its own Apply runs.
type MergePolicy int

const (
	// MergeConcat drains each input pipe in declared order.
	MergeConcat MergePolicy = iota
	// MergeInterleave round-robins one item at a time across inputs.
	MergeInterleave
	// MergeCustom delegates to a user-supplied merge function.
	MergeCustom
)

// CustomMerge is the user delegate used when MergePolicy == MergeCustom.
type CustomMerge[T any] func(ctx context.Context, ins []pipe.Pipe[T]) (pipe.Pipe[T], error)

// Merge combines ins into a single pipe according to policy. custom is
// consulted only when policy == MergeCustom.
func Merge[T any](ctx context.Context, policy MergePolicy, ins []pipe.Pipe[T], custom CustomMerge[T]) (pipe.Pipe[T], error) {
	switch policy {
	case MergeConcat:
		return mergeConcat(ins), nil
	case MergeInterleave:
		return mergeInterleave(ctx, ins), nil
	case MergeCustom:
		return custom(ctx, ins)
	default:
		return mergeConcat(ins), nil
	}
}

func mergeConcat[T any](ins []pipe.Pipe[T]) pipe.Pipe[T] {
	idx := 0
	return pipe.FromFunc("merge/concat", func(ctx context.Context) (T, error) {
		var zero T
		for idx < len(ins) {
			item, err := ins[idx].Next(ctx)
			if err == nil {
				return item, nil
			}
			if pipe.IsEOF(err) {
				idx++
				continue
			}
			return zero, err
		}
		return zero, pipe.EOF
	}, func(ctx context.Context) error {
		var firstErr error
		for _, p := range ins {
			if err := p.Dispose(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

func mergeInterleave[T any](ctx context.Context, ins []pipe.Pipe[T]) pipe.Pipe[T] {
	done := make([]bool, len(ins))
	pos := 0
	remaining := len(ins)
	return pipe.FromFunc("merge/interleave", func(ctx context.Context) (T, error) {
		var zero T
		for remaining > 0 {
			if !done[pos] {
				item, err := ins[pos].Next(ctx)
				if err == nil {
					pos = (pos + 1) % len(ins)
					return item, nil
				}
				if pipe.IsEOF(err) {
					done[pos] = true
					remaining--
				} else {
					return zero, err
				}
			}
			pos = (pos + 1) % len(ins)
		}
		return zero, pipe.EOF
	}, func(ctx context.Context) error {
		var firstErr error
		for _, p := range ins {
			if err := p.Dispose(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

package join

import (
	"context"

	"github.com/npipeline/engine/pipe"
)

// Left tags an item as belonging to the left side of a self-join: two
// streams of identical element type require this wrapper at the
// boundary so the engine can tell them apart, per §4.6's self-join
// note.
type Left[T any] struct{ Item T }

// Right tags an item as belonging to the right side of a self-join.
type Right[T any] struct{ Item T }

// Applier abstracts Engine/Windowed so SelfJoin works with either.
type Applier[K comparable, T, Out any] interface {
	Apply(ctx context.Context, left pipe.Pipe[T], right pipe.Pipe[T]) (pipe.Pipe[Out], error)
}

// SelfJoin drains a single tagged stream, splits it back into its Left
// and Right halves (unwrapping the boundary tags before the engine
// ever sees a bare T), and runs the ordinary two-sided join over them.
func SelfJoin[K comparable, T, Out any](ctx context.Context, in pipe.Pipe[any], engine Applier[K, T, Out]) (pipe.Pipe[Out], error) {
	tagged, err := pipe.Collect(ctx, in)
	if err != nil {
		return nil, err
	}

	var leftItems, rightItems []T
	for _, v := range tagged {
		switch tv := v.(type) {
		case Left[T]:
			leftItems = append(leftItems, tv.Item)
		case Right[T]:
			rightItems = append(rightItems, tv.Item)
		}
	}

	left := pipe.FromSlice[T]("self-join/left", leftItems)
	right := pipe.FromSlice[T]("self-join/right", rightItems)
	return engine.Apply(ctx, left, right)
}

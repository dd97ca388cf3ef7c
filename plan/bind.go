package plan

import (
	"context"
	"fmt"

	"github.com/npipeline/engine/node"
	"github.com/npipeline/engine/pipe"
	"github.com/npipeline/engine/strategy"
)

// boxPipe and unboxPipe are the single type-assertion boundary between
// a node implementation's concretely-typed Pipe[T] and the plan
// compiler's internally boxed Pipe[any]. This is the "one reflective
// step" §4.3 allows at compile time — except it isn't reflect-package
// reflection at all, just an interface type assertion per item, which
// is how Go idiomatically erases type parameters at a registry
// boundary (see DESIGN.md's Open Questions for why this reading of
// "no reflection" was chosen over the alternative of not supporting a
// heterogeneous node registry at all).
func boxPipe[T any](p pipe.Pipe[T]) pipe.Pipe[any] {
	return pipe.FromFunc(p.StreamName(), func(ctx context.Context) (any, error) {
		return p.Next(ctx)
	}, p.Dispose)
}

func unboxPipe[T any](p pipe.Pipe[any]) pipe.Pipe[T] {
	return pipe.FromFunc(p.StreamName(), func(ctx context.Context) (T, error) {
		var zero T
		item, err := p.Next(ctx)
		if err != nil {
			return zero, err
		}
		typed, ok := item.(T)
		if !ok {
			return zero, fmt.Errorf("plan: item of type %T does not match expected type", item)
		}
		return typed, nil
	}, p.Dispose)
}

// boundSource, boundTransform, etc. are the type-erased forms the plan
// compiler stores per node, produced by the Bind* functions below at
// the call site where the concrete type parameters are still known.
type boundSource struct {
	Init func(ctx context.Context) (pipe.Pipe[any], error)
}

type boundTransform struct {
	Apply func(ctx context.Context, item any) (any, error)
}

type boundStreamTransform struct {
	Apply func(ctx context.Context, in pipe.Pipe[any]) (pipe.Pipe[any], error)
}

type boundSink struct {
	Consume func(ctx context.Context, in pipe.Pipe[any]) error
}

type boundJoin struct {
	Apply func(ctx context.Context, left, right pipe.Pipe[any]) (pipe.Pipe[any], error)
}

type boundAggregate struct {
	Apply func(ctx context.Context, in pipe.Pipe[any]) (pipe.Pipe[any], error)
}

// BindSource adapts a concretely-typed SourceNode into the boxed form
// the compiler stores in the instances map under the node's id.
func BindSource[T any](impl node.SourceNode[T]) boundSource {
	return boundSource{Init: func(ctx context.Context) (pipe.Pipe[any], error) {
		p, err := impl.Init(ctx)
		if err != nil {
			return nil, err
		}
		return boxPipe[T](p), nil
	}}
}

// BindTransform adapts a concretely-typed TransformNode.
func BindTransform[In, Out any](impl node.TransformNode[In, Out]) boundTransform {
	return boundTransform{Apply: func(ctx context.Context, item any) (any, error) {
		typed, ok := item.(In)
		if !ok {
			var zero Out
			return zero, fmt.Errorf("plan: item of type %T does not match expected input type", item)
		}
		return impl.Apply(ctx, typed)
	}}
}

// BindStreamTransform adapts a concretely-typed StreamTransformNode.
func BindStreamTransform[In, Out any](impl node.StreamTransformNode[In, Out]) boundStreamTransform {
	return boundStreamTransform{Apply: func(ctx context.Context, in pipe.Pipe[any]) (pipe.Pipe[any], error) {
		out, err := impl.Apply(ctx, unboxPipe[In](in))
		if err != nil {
			return nil, err
		}
		return boxPipe[Out](out), nil
	}}
}

// BindSink adapts a concretely-typed SinkNode.
func BindSink[T any](impl node.SinkNode[T]) boundSink {
	return boundSink{Consume: func(ctx context.Context, in pipe.Pipe[any]) error {
		return impl.Consume(ctx, unboxPipe[T](in))
	}}
}

// BindJoin adapts a concretely-typed JoinNode.
func BindJoin[K comparable, L, R, Out any](impl node.JoinNode[K, L, R, Out]) boundJoin {
	return boundJoin{Apply: func(ctx context.Context, left, right pipe.Pipe[any]) (pipe.Pipe[any], error) {
		out, err := impl.Apply(ctx, unboxPipe[L](left), unboxPipe[R](right))
		if err != nil {
			return nil, err
		}
		return boxPipe[Out](out), nil
	}}
}

// BindAggregate adapts a concretely-typed AggregateNode.
func BindAggregate[In any, K comparable, State, Out any](impl node.AggregateNode[In, K, State, Out]) boundAggregate {
	return boundAggregate{Apply: func(ctx context.Context, in pipe.Pipe[any]) (pipe.Pipe[any], error) {
		out, err := impl.Apply(ctx, unboxPipe[In](in))
		if err != nil {
			return nil, err
		}
		return boxPipe[Out](out), nil
	}}
}

// customMergeKey is the instances-map key a MergeCustom join/aggregate
// node's delegate is registered under, alongside its own bound
// instance at id. Kept distinct from id so the two never collide.
func customMergeKey(id string) string {
	return id + "#merge"
}

// BindCustomMerge adapts a concretely-typed strategy.CustomMerge
// delegate into the boxed form Compile looks up under a node's
// customMergeKey when its MergePolicy is graph.MergeCustom.
func BindCustomMerge[T any](fn strategy.CustomMerge[T]) strategy.CustomMerge[any] {
	return func(ctx context.Context, ins []pipe.Pipe[any]) (pipe.Pipe[any], error) {
		typed := make([]pipe.Pipe[T], len(ins))
		for i, p := range ins {
			typed[i] = unboxPipe[T](p)
		}
		out, err := fn(ctx, typed)
		if err != nil {
			return nil, err
		}
		return boxPipe[T](out), nil
	}
}

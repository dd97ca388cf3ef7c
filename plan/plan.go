// Package plan turns a frozen graph plus a dictionary of node
// instances into per-node execution plans: direct-dispatch closures
// wrapped with the node's selected strategy, with no reflection after
// Compile returns (§4.3).
package plan

import (
	"context"
	"fmt"

	"github.com/npipeline/engine/errs"
	"github.com/npipeline/engine/graph"
	"github.com/npipeline/engine/pipe"
	"github.com/npipeline/engine/pipelinectx"
	"github.com/npipeline/engine/strategy"
)

// SourcePlan, TransformPlan, etc. are the output-contract shapes named
// by §4.3 — exposed for callers who want to hold a single node's
// compiled plan directly rather than going through CompiledGraph.
type SourcePlan[T any] struct {
	Init func(ctx context.Context) (pipe.Pipe[T], error)
}

type TransformPlan[In, Out any] struct {
	Apply func(ctx context.Context, item In) (Out, error)
}

type StreamTransformPlan[In, Out any] struct {
	Apply func(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error)
}

type SinkPlan[T any] struct {
	Consume func(ctx context.Context, in pipe.Pipe[T]) error
}

type JoinPlan[K comparable, L, R, Out any] struct {
	Apply func(ctx context.Context, left pipe.Pipe[L], right pipe.Pipe[R]) (pipe.Pipe[Out], error)
}

type AggregatePlan[In any, K comparable, State, Out any] struct {
	Apply func(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error)
}

// compiledNode holds the boxed plan for one node plus the graph info
// needed to assemble and strategy-wrap its pipe.
type compiledNode struct {
	info            graph.NodeInfo
	source          boundSource
	transform       boundTransform
	streamTransform boundStreamTransform
	sink            boundSink
	join            boundJoin
	aggregate       boundAggregate
	customMerge     strategy.CustomMerge[any]
}

// CompiledGraph is the output of Compile: every node's plan, ready for
// the runner to assemble into running pipes back-to-front from sinks.
type CompiledGraph struct {
	g     *graph.Graph
	nodes map[string]*compiledNode
}

// Compile walks g once, type-asserting each node's bound instance
// against the boxed shape its Kind demands. instances is keyed by node
// id; each value must have been produced by a Bind* function in this
// package so the assertion below is a single, cheap interface check —
// not a reflective scan.
func Compile(g *graph.Graph, instances map[string]any) (*CompiledGraph, error) {
	if !g.IsFrozen() {
		return nil, fmt.Errorf("plan: graph must be built before compiling")
	}
	cg := &CompiledGraph{g: g, nodes: make(map[string]*compiledNode)}
	for _, id := range g.NodeIDs() {
		info, _ := g.Node(id)
		raw, ok := instances[id]
		if !ok {
			return nil, fmt.Errorf("plan: no instance registered for node %q", id)
		}
		cn := &compiledNode{info: info}
		var err error
		switch info.Kind {
		case graph.Source:
			cn.source, err = assertBound[boundSource](id, raw)
		case graph.Transform:
			cn.transform, err = assertBound[boundTransform](id, raw)
		case graph.StreamTransform, graph.Tap, graph.Branch:
			cn.streamTransform, err = assertBound[boundStreamTransform](id, raw)
		case graph.Sink:
			cn.sink, err = assertBound[boundSink](id, raw)
		case graph.Join:
			cn.join, err = assertBound[boundJoin](id, raw)
		case graph.Aggregate:
			cn.aggregate, err = assertBound[boundAggregate](id, raw)
		default:
			err = fmt.Errorf("plan: node %q has unrecognized kind %v", id, info.Kind)
		}
		if err != nil {
			return nil, err
		}
		if info.MergePolicy == graph.MergeCustom {
			rawMerge, ok := instances[customMergeKey(id)]
			if !ok {
				return nil, fmt.Errorf("plan: node %q declares a custom merge policy but no delegate is registered under %q", id, customMergeKey(id))
			}
			cn.customMerge, err = assertBound[strategy.CustomMerge[any]](id, rawMerge)
			if err != nil {
				return nil, err
			}
		}
		cg.nodes[id] = cn
	}
	return cg, nil
}

func assertBound[T any](id string, raw any) (T, error) {
	v, ok := raw.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("plan: node %q instance does not match its declared kind (got %T)", id, raw)
	}
	return v, nil
}

func (cg *CompiledGraph) upstreamIDs(id string) []string {
	var ids []string
	for _, e := range cg.g.Edges() {
		if e.To == id {
			ids = append(ids, e.From)
		}
	}
	return ids
}

// Pipe assembles and returns the output pipe for a non-sink node,
// recursively resolving and strategy-wrapping its upstream edges.
// Fan-out (one pipe feeding multiple downstream nodes) is only valid
// through explicit Tap/Branch nodes per §3's linear-consumption
// invariant; Pipe does not memoize results across calls.
func (cg *CompiledGraph) Pipe(ctx context.Context, pctx *pipelinectx.PipelineContext, id string) (pipe.Pipe[any], error) {
	cn, ok := cg.nodes[id]
	if !ok {
		return nil, fmt.Errorf("plan: unknown node %q", id)
	}
	switch cn.info.Kind {
	case graph.Source:
		return cn.source.Init(ctx)
	case graph.Transform:
		up, err := cg.singleUpstream(ctx, pctx, id)
		if err != nil {
			return nil, err
		}
		return cg.runTransform(ctx, pctx, cn, up)
	case graph.StreamTransform, graph.Tap, graph.Branch:
		up, err := cg.singleUpstream(ctx, pctx, id)
		if err != nil {
			return nil, err
		}
		return cg.runStreamTransform(ctx, pctx, cn, up)
	case graph.Join:
		left, right, err := cg.joinUpstreams(ctx, pctx, id)
		if err != nil {
			return nil, err
		}
		return cn.join.Apply(ctx, left, right)
	case graph.Aggregate:
		up, err := cg.mergedUpstream(ctx, pctx, id)
		if err != nil {
			return nil, err
		}
		return cn.aggregate.Apply(ctx, up)
	default:
		return nil, fmt.Errorf("plan: node %q has no output pipe (kind %v)", id, cn.info.Kind)
	}
}

// RunSink resolves a sink node's upstream pipe and drains it.
func (cg *CompiledGraph) RunSink(ctx context.Context, pctx *pipelinectx.PipelineContext, id string) error {
	cn, ok := cg.nodes[id]
	if !ok {
		return fmt.Errorf("plan: unknown node %q", id)
	}
	if cn.info.Kind != graph.Sink {
		return fmt.Errorf("plan: node %q is not a sink", id)
	}
	up, err := cg.singleUpstream(ctx, pctx, id)
	if err != nil {
		return err
	}
	return cn.sink.Consume(ctx, up)
}

// SinkIDs returns every sink node id, for the runner to fan out over.
func (cg *CompiledGraph) SinkIDs() []string {
	var ids []string
	for _, id := range cg.g.NodeIDs() {
		if cg.nodes[id].info.Kind == graph.Sink {
			ids = append(ids, id)
		}
	}
	return ids
}

func (cg *CompiledGraph) singleUpstream(ctx context.Context, pctx *pipelinectx.PipelineContext, id string) (pipe.Pipe[any], error) {
	ups := cg.upstreamIDs(id)
	if len(ups) == 0 {
		return nil, fmt.Errorf("plan: node %q has no upstream edge", id)
	}
	if len(ups) == 1 {
		return cg.Pipe(ctx, pctx, ups[0])
	}
	return cg.mergedUpstream(ctx, pctx, id)
}

// mergedUpstream resolves every upstream pipe for id and combines them
// per the node's declared MergePolicy (§4.5.2). Validation rule (10)
// warns when a node other than a join or aggregate has more than one
// inbound edge.
func (cg *CompiledGraph) mergedUpstream(ctx context.Context, pctx *pipelinectx.PipelineContext, id string) (pipe.Pipe[any], error) {
	ups := cg.upstreamIDs(id)
	ins := make([]pipe.Pipe[any], 0, len(ups))
	for _, up := range ups {
		p, err := cg.Pipe(ctx, pctx, up)
		if err != nil {
			return nil, err
		}
		ins = append(ins, p)
	}
	policy := strategy.MergeConcat
	switch cg.nodes[id].info.MergePolicy {
	case graph.MergeInterleave:
		policy = strategy.MergeInterleave
	case graph.MergeCustom:
		policy = strategy.MergeCustom
	}
	return strategy.Merge[any](ctx, policy, ins, cg.nodes[id].customMerge)
}

// joinUpstreams resolves a join node's two inbound edges by the
// builder's declaration order (ConnectLeft called before ConnectRight
// for any typical builder definition, though the graph itself does not
// distinguish sides — the runner relies on join node implementations
// being symmetric-safe if both arrive in an unexpected order, since
// the graph's edge list preserves declaration order and the builder's
// ConnectLeft/ConnectRight functions are the only way to reach a join
// node's input, so declaration order equals semantic left/right order).
func (cg *CompiledGraph) joinUpstreams(ctx context.Context, pctx *pipelinectx.PipelineContext, id string) (left, right pipe.Pipe[any], err error) {
	ups := cg.upstreamIDs(id)
	if len(ups) != 2 {
		return nil, nil, fmt.Errorf("plan: join node %q must have exactly 2 inbound edges, got %d", id, len(ups))
	}
	left, err = cg.Pipe(ctx, pctx, ups[0])
	if err != nil {
		return nil, nil, err
	}
	right, err = cg.Pipe(ctx, pctx, ups[1])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (cg *CompiledGraph) runTransform(ctx context.Context, pctx *pipelinectx.PipelineContext, cn *compiledNode, up pipe.Pipe[any]) (pipe.Pipe[any], error) {
	cfg := cn.info.Strategy
	if cfg.Kind == strategy.KindResilient {
		innerCfg := strategy.Sequential()
		if cfg.Inner != nil {
			innerCfg = *cfg.Inner
		}
		inner := cg.transformStream(pctx, cn, innerCfg)
		return cg.runResilient(ctx, pctx, cn, inner, up)
	}
	return cg.transformStream(pctx, cn, cfg)(ctx, up)
}

// transformStream builds the non-resilient StreamApplyFunc a transform
// node's strategy.Config names: Sequential/Parallel wrap the node's
// item apply (retried per retriedApply); Batching bypasses the node's
// own Apply entirely and groups the raw upstream items instead.
func (cg *CompiledGraph) transformStream(pctx *pipelinectx.PipelineContext, cn *compiledNode, cfg strategy.Config) strategy.StreamApplyFunc[any, any] {
	switch cfg.Kind {
	case strategy.KindBatching:
		// Batching is purely a grouping operation over raw items; the
		// node's own Apply (if any) is not invoked (see DESIGN.md).
		// strategy.Batching[any] returns a StreamApplyFunc[any, []any]
		// — a distinct instantiation from the StreamApplyFunc[any, any]
		// this method returns — so each emitted []any batch is boxed
		// back into a single any item via boxPipe before being handed
		// further downstream.
		batch := strategy.Batching[any](cfg.Batch)
		return func(ctx context.Context, in pipe.Pipe[any]) (pipe.Pipe[any], error) {
			out, err := batch(ctx, in)
			if err != nil {
				return nil, err
			}
			return boxPipe[[]any](out), nil
		}
	case strategy.KindParallel:
		return strategy.Parallel[any, any](cfg.Parallel, cg.retriedApply(pctx, cn, cn.transform.Apply))
	default:
		return strategy.Sequential[any, any](cg.retriedApply(pctx, cn, cn.transform.Apply))
	}
}

// retriedApply wraps a transform node's item-level apply with the
// per-item retry loop of §4.5.1 whenever the node declares retry
// options or the pipeline context has an ErrorHandlerFactory;
// otherwise the apply is returned unchanged.
func (cg *CompiledGraph) retriedApply(pctx *pipelinectx.PipelineContext, cn *compiledNode, apply func(ctx context.Context, item any) (any, error)) func(ctx context.Context, item any) (any, error) {
	if cn.info.RetryOptions == nil && pctx.ErrorHandlerFactory == nil {
		return apply
	}
	opts := pctx.RetryOptions
	if cn.info.RetryOptions != nil {
		opts = *cn.info.RetryOptions
	}
	var nodeHandler errs.NodeErrorHandler[any]
	if pctx.ErrorHandlerFactory != nil {
		nodeHandler = pctx.ErrorHandlerFactory(cn.info.ID)
	}
	return strategy.WithItemRetry[any, any](cn.info.ID, apply, opts, nodeHandler, pctx.DeadLetterSink)
}

func (cg *CompiledGraph) runStreamTransform(ctx context.Context, pctx *pipelinectx.PipelineContext, cn *compiledNode, up pipe.Pipe[any]) (pipe.Pipe[any], error) {
	inner := strategy.StreamApplyFunc[any, any](cn.streamTransform.Apply)
	if cn.info.Strategy.Kind == strategy.KindResilient {
		return cg.runResilient(ctx, pctx, cn, inner, up)
	}
	return inner(ctx, up)
}

func (cg *CompiledGraph) runResilient(ctx context.Context, pctx *pipelinectx.PipelineContext, cn *compiledNode, inner strategy.StreamApplyFunc[any, any], up pipe.Pipe[any]) (pipe.Pipe[any], error) {
	opts := pctx.RetryOptions
	if cn.info.RetryOptions != nil {
		opts = *cn.info.RetryOptions
	}
	return strategy.Resilient[any, any](cn.info.ID, opts, inner, pctx.PipelineErrorHandler)(ctx, up)
}

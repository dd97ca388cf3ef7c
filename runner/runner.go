// Package runner implements §4.8's seven-step pipeline run: instantiate
// a Definition, build and validate its graph, compile (or reuse a
// cached compilation of) its plan, assemble pipes back-to-front, and
// drive every sink concurrently under one shared cancellation handle.
package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/npipeline/engine/graph"
	"github.com/npipeline/engine/plan"
	"github.com/npipeline/engine/plancache"
	"github.com/npipeline/engine/pipelinectx"
)

// Definition is the one-method contract a caller implements to
// describe a pipeline: build its graph against b. pctx carries the
// run's parameters.
type Definition interface {
	Define(b *graph.Builder, pctx DefineContext) error
}

// DefineContext is handed to Definition.Define. It exposes the run's
// parameters (for definitions that branch their graph shape on a
// parameter — rare, but not excluded by §4.8).
type DefineContext struct {
	Params map[string]string
}

// InstanceFactory builds the concrete node instance (already passed
// through a plan.Bind* call) for a given node id. The runner calls
// this once per node per compile, never at steady state.
type InstanceFactory func(nodeID string, info graph.NodeInfo) (any, error)

// options collects everything RunOption can configure.
type options struct {
	pctx             *pipelinectx.PipelineContext
	cache            plancache.Cache
	disableCache     bool
	instanceFactory  InstanceFactory
	preconfigured    map[string]any
	params           map[string]string
	defType          string
}

// RunOption configures a single Run call.
type RunOption func(*options)

// WithPipelineContext supplies a fully configured PipelineContext
// (loggers, error handlers, dead-letter sink, retry defaults) instead
// of the zero-value default New(ctx) builds internally.
func WithPipelineContext(pctx *pipelinectx.PipelineContext) RunOption {
	return func(o *options) { o.pctx = pctx }
}

// WithCache supplies the plan cache to query/populate. Defaults to a
// package-level shared plancache.InMemory when omitted.
func WithCache(c plancache.Cache) RunOption {
	return func(o *options) { o.cache = c }
}

// DisableCache skips both lookup and population regardless of which
// Cache is configured, per §4.4.
func DisableCache() RunOption {
	return func(o *options) { o.disableCache = true }
}

// WithInstanceFactory supplies the DI/no-arg-constructor factory used
// to resolve node instances not covered by WithPreconfiguredInstance.
func WithInstanceFactory(f InstanceFactory) RunOption {
	return func(o *options) { o.instanceFactory = f }
}

// WithPreconfiguredInstance registers a pre-built instance for a node
// id, overriding both the factory and the cache (§4.4: a run with any
// preconfigured instance always skips the cache).
func WithPreconfiguredInstance(nodeID string, instance any) RunOption {
	return func(o *options) {
		if o.preconfigured == nil {
			o.preconfigured = make(map[string]any)
		}
		o.preconfigured[nodeID] = instance
	}
}

// WithParams seeds the run's parameters, visible to Definition.Define
// via DefineContext.Params and to nodes via PipelineContext.Param.
func WithParams(params map[string]string) RunOption {
	return func(o *options) { o.params = params }
}

// WithDefinitionType overrides the cache key's definition-type
// component, which otherwise defaults to a %T of def. Useful when
// multiple Definition values should share one cache entry.
func WithDefinitionType(name string) RunOption {
	return func(o *options) { o.defType = name }
}

var defaultCache = plancache.NewInMemory()

// Run executes def's pipeline to completion: build, validate, compile
// (or fetch from cache), assemble, and drive every sink concurrently.
// It returns the first fatal error encountered, after cancelling the
// shared context so every other sink unwinds.
func Run(ctx context.Context, def Definition, opts ...RunOption) error {
	o := &options{
		cache:   defaultCache,
		defType: fmt.Sprintf("%T", def),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pctx == nil {
		o.pctx = pipelinectx.New(ctx)
	}
	for k, v := range o.params {
		o.pctx.SetParam(k, v)
	}

	b := graph.NewBuilder()
	if err := def.Define(b, DefineContext{Params: o.params}); err != nil {
		return fmt.Errorf("runner: definition %q failed to build graph: %w", o.defType, err)
	}
	g, err := b.Build()
	if err != nil {
		return fmt.Errorf("runner: graph validation failed: %w", err)
	}

	skipCache := o.disableCache || len(o.preconfigured) > 0 || len(b.Preconfigured()) > 0
	var cg *plan.CompiledGraph
	if !skipCache {
		if cached, ok := o.cache.TryGet(o.defType, g.StructuralHash()); ok {
			cg = cached
		}
	}
	if cg == nil {
		instances, err := resolveInstances(g, o)
		if err != nil {
			return err
		}
		cg, err = plan.Compile(g, instances)
		if err != nil {
			return fmt.Errorf("runner: plan compile failed: %w", err)
		}
		if !skipCache {
			o.cache.Put(o.defType, g.StructuralHash(), cg)
		}
	}

	return runSinks(o.pctx, cg)
}

func resolveInstances(g *graph.Graph, o *options) (map[string]any, error) {
	instances := make(map[string]any, len(g.NodeIDs()))
	for _, id := range g.NodeIDs() {
		if inst, ok := o.preconfigured[id]; ok {
			instances[id] = inst
			continue
		}
		info, _ := g.Node(id)
		if o.instanceFactory == nil {
			return nil, fmt.Errorf("runner: node %q has no preconfigured instance and no InstanceFactory was supplied", id)
		}
		inst, err := o.instanceFactory(id, info)
		if err != nil {
			return nil, fmt.Errorf("runner: instance factory failed for node %q: %w", id, err)
		}
		instances[id] = inst
	}
	return instances, nil
}

// runSinks starts every sink concurrently under pctx's shared
// cancellation handle and waits for all of them. The first fatal
// error cancels the shared context, unwinding every in-flight sink.
func runSinks(pctx *pipelinectx.PipelineContext, cg *plan.CompiledGraph) error {
	sinkIDs := cg.SinkIDs()
	if len(sinkIDs) == 0 {
		return fmt.Errorf("runner: graph has no sink nodes to drive")
	}

	g, ctx := errgroup.WithContext(pctx.Context())
	for _, id := range sinkIDs {
		id := id
		g.Go(func() error {
			return cg.RunSink(ctx, pctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		pctx.Cancel(err)
		return err
	}
	return nil
}

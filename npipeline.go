// Package npipeline is the public surface of the engine (§6): one
// import path aliasing the node contracts, the graph builder, the
// runner entry point, and the error-handling/caching collaborators a
// caller wires together, so a pipeline author rarely needs to import
// the internal graph/plan/runner packages directly.
package npipeline

import (
	"context"

	"github.com/npipeline/engine/errs"
	"github.com/npipeline/engine/graph"
	"github.com/npipeline/engine/node"
	"github.com/npipeline/engine/plancache"
	"github.com/npipeline/engine/runner"
)

// Builder assembles a pipeline's graph. It is graph.Builder itself, so
// every graph.AddXxx/Connect free function and every method declared
// there — including Describe/ToMermaidDiagram/ToDotDiagram — applies
// directly to a npipeline.Builder value.
type Builder = graph.Builder

// Definition is the one-method contract a caller implements to
// describe a pipeline's shape.
type Definition = runner.Definition

// DefineContext is handed to Definition.Define.
type DefineContext = runner.DefineContext

// InstanceFactory builds the concrete, plan.Bind*-wrapped instance for
// a node id at compile time.
type InstanceFactory = runner.InstanceFactory

// RunOption configures a single Run call.
type RunOption = runner.RunOption

// SourceNode, TransformNode, StreamTransformNode, SinkNode, JoinNode,
// and AggregateNode are the typed contracts a node implementation
// satisfies, re-exported from package node for callers who only ever
// import npipeline.
type (
	SourceNode[T any]                                   = node.SourceNode[T]
	TransformNode[In, Out any]                           = node.TransformNode[In, Out]
	StreamTransformNode[In, Out any]                     = node.StreamTransformNode[In, Out]
	SinkNode[T any]                                      = node.SinkNode[T]
	JoinNode[K comparable, L, R, Out any]                = node.JoinNode[K, L, R, Out]
	AggregateNode[In any, K comparable, State, Out any]  = node.AggregateNode[In, K, State, Out]
)

// NodeErrorHandler, PipelineErrorHandler, and DeadLetterSink are the
// error-handling collaborators a PipelineContext wires per node/run.
type (
	NodeErrorHandler[Data any] = errs.NodeErrorHandler[Data]
	PipelineErrorHandler       = errs.PipelineErrorHandler
	DeadLetterSink             = errs.DeadLetterSink
)

// PlanCache is the compiled-plan cache contract Run consults before
// recompiling a definition's graph.
type PlanCache = plancache.Cache

// NewBuilder starts an empty pipeline builder.
func NewBuilder() *Builder { return graph.NewBuilder() }

// Run executes def's pipeline to completion: builds and validates its
// graph, compiles (or reuses a cached compilation of) its plan,
// assembles every pipe back-to-front, and drives every sink
// concurrently under one shared cancellation handle.
func Run(ctx context.Context, def Definition, opts ...RunOption) error {
	return runner.Run(ctx, def, opts...)
}

// WithPipelineContext, WithCache, DisableCache, WithInstanceFactory,
// WithPreconfiguredInstance, WithParams, and WithDefinitionType
// configure a Run call; re-exported here so callers never need to
// import package runner directly.
var (
	WithPipelineContext       = runner.WithPipelineContext
	WithCache                 = runner.WithCache
	DisableCache              = runner.DisableCache
	WithInstanceFactory       = runner.WithInstanceFactory
	WithPreconfiguredInstance = runner.WithPreconfiguredInstance
	WithParams                = runner.WithParams
	WithDefinitionType        = runner.WithDefinitionType
)

// NewPlanCache builds a fresh in-memory PlanCache, for callers who
// want an isolated cache instead of the package-level default Run
// shares across calls.
func NewPlanCache() PlanCache { return plancache.NewInMemory() }

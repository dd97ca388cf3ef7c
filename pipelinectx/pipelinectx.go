// Package pipelinectx defines the node execution context threaded
// through every running node: cancellation, shared state, logging,
// tracing, and the error-handling collaborators a node's strategy
// consults when something goes wrong.
package pipelinectx

import (
	"context"
	"sync"

	"github.com/npipeline/engine/errs"
	"github.com/npipeline/engine/internal/xlog"
	"github.com/npipeline/engine/strategy"
)

// RetryOptions is the pipelinectx-facing name for the retry/restart
// configuration a node's resilient strategy consumes. It is a type
// alias for strategy.RetryOptions (which owns the struct and its
// go-playground/validator tags) rather than a separate type, so the
// strategy package never has to import pipelinectx back — the two
// would otherwise form an import cycle, since strategy.Resilient also
// needs this shape directly.
type RetryOptions = strategy.RetryOptions

// TraceSpan is the minimal tracing collaborator a pipeline context can
// carry. It is an external concern (a concrete tracing backend is out
// of scope for this module) — nodes that want tracing supply their own
// implementation; a nil Tracer on PipelineContext means tracing is
// disabled.
type TraceSpan interface {
	SetAttribute(key string, value any)
	End()
}

// ErrorHandlerFactory produces the node-level error handler for a
// given node ID. Returning nil means the node has no per-item error
// handler configured (every item failure is treated as Fail).
type ErrorHandlerFactory func(nodeID string) errs.NodeErrorHandler[any]

// sharedState is the RWMutex-guarded holder behind PipelineContext's
// Items/Params maps: nodes read concurrently during steady state, and
// per §9 only write outside their own execution window (enforced by
// convention and, in debug builds, by NodeExecutionSnapshot's
// immutability guard).
type sharedState struct {
	mu     sync.RWMutex
	items  map[string]any
	params map[string]string
}

func newSharedState() *sharedState {
	return &sharedState{items: make(map[string]any), params: make(map[string]string)}
}

func (s *sharedState) Item(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *sharedState) SetItem(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

func (s *sharedState) Param(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.params[key]
	return v, ok
}

func (s *sharedState) SetParam(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[key] = value
}

func (s *sharedState) snapshotParams() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// PipelineContext is the run-scoped collaborator bundle every compiled
// node receives. One PipelineContext is built per Run call and shared
// by every node in that run.
type PipelineContext struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	state *sharedState

	LoggerFactory        func(nodeID string) xlog.Logger
	Tracer               TraceSpan
	ErrorHandlerFactory  ErrorHandlerFactory
	DeadLetterSink       errs.DeadLetterSink
	PipelineErrorHandler errs.PipelineErrorHandler
	RetryOptions         RetryOptions
}

// New builds a PipelineContext deriving its cancellation from parent.
// Cancel(err) later unwinds every node sharing this context with err
// as the cancellation cause.
func New(parent context.Context) *PipelineContext {
	ctx, cancel := context.WithCancelCause(parent)
	return &PipelineContext{
		ctx:    ctx,
		cancel: cancel,
		state:  newSharedState(),
		LoggerFactory: func(nodeID string) xlog.Logger {
			return xlog.Default().With(xlog.String("node", nodeID))
		},
	}
}

// Context returns the run-scoped context nodes should observe for
// cancellation.
func (pc *PipelineContext) Context() context.Context { return pc.ctx }

// Cancel cancels every node sharing this context, recording cause as
// the cancellation reason retrievable via context.Cause.
func (pc *PipelineContext) Cancel(cause error) { pc.cancel(cause) }

// Item reads a shared value previously stored with SetItem.
func (pc *PipelineContext) Item(key string) (any, bool) { return pc.state.Item(key) }

// SetItem stores a shared value visible to every node in the run. Per
// §9, callers should only do this outside a node's own execution
// window — concurrent writes from within Apply race with readers in
// other goroutines.
func (pc *PipelineContext) SetItem(key string, value any) { pc.state.SetItem(key, value) }

// Param reads a run parameter (typically populated once before Run
// starts, e.g. from CLI flags or environment per the teacher's config
// loading pattern).
func (pc *PipelineContext) Param(key string) (string, bool) { return pc.state.Param(key) }

// SetParam stores a run parameter.
func (pc *PipelineContext) SetParam(key, value string) { pc.state.SetParam(key, value) }

// LoggerFor builds the logger a node should use, honoring
// LoggerFactory when set.
func (pc *PipelineContext) LoggerFor(nodeID string) xlog.Logger {
	if pc.LoggerFactory == nil {
		return xlog.Noop()
	}
	return pc.LoggerFactory(nodeID)
}

// NodeExecutionSnapshot is captured once at node-start and compared
// again at node-exit by DebugGuard in debug builds, catching a node
// that mutated collaborators it was only handed by reference to read.
type NodeExecutionSnapshot struct {
	NodeID       string
	RetryOptions RetryOptions
	TracingOn    bool
	LoggingOn    bool
	params       map[string]string
}

// Snapshot captures the context's current configuration for nodeID.
func (pc *PipelineContext) Snapshot(nodeID string) NodeExecutionSnapshot {
	return NodeExecutionSnapshot{
		NodeID:       nodeID,
		RetryOptions: pc.RetryOptions,
		TracingOn:    pc.Tracer != nil,
		LoggingOn:    pc.LoggerFactory != nil,
		params:       pc.state.snapshotParams(),
	}
}

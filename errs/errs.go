// Package errs defines the error-handling taxonomy shared by every
// node and by the runner: node-level decisions, pipeline-level
// decisions, the handler interfaces that produce them, and the
// dead-letter sink contract.
package errs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/npipeline/engine/pipe"
	"github.com/oklog/ulid/v2"
)

// NodeDecision is returned by a node-level error handler after an item
// error.
type NodeDecision int

const (
	// Retry schedules a delayed retry, bounded by RetryOptions.MaxItemRetries.
	Retry NodeDecision = iota
	// Skip discards the failing item and continues.
	Skip
	// DeadLetter forwards the failing item to the configured dead-letter sink.
	DeadLetter
	// Fail re-raises the error, escalating it to a node error.
	Fail
)

func (d NodeDecision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Skip:
		return "skip"
	case DeadLetter:
		return "dead-letter"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("NodeDecision(%d)", int(d))
	}
}

// PipelineDecision is returned by the pipeline-level error handler
// after a node error (item retries exhausted, or a non-item failure
// raised from the node's setup/cleanup).
type PipelineDecision int

const (
	// RestartNode replays materialized items and restarts the node.
	RestartNode PipelineDecision = iota
	// ContinueWithoutNode detaches the failing node; downstream sees
	// end-of-stream on the pipe it would have produced.
	ContinueWithoutNode
	// FailPipeline terminates the run with the original error.
	FailPipeline
)

func (d PipelineDecision) String() string {
	switch d {
	case RestartNode:
		return "restart-node"
	case ContinueWithoutNode:
		return "continue-without-node"
	case FailPipeline:
		return "fail-pipeline"
	default:
		return fmt.Sprintf("PipelineDecision(%d)", int(d))
	}
}

// NodeErrorHandler decides what to do about a single failing item on
// behalf of one node. Data is the node's item type (boxed as any at
// call sites that cross node-kind boundaries, concretely typed at the
// node itself).
type NodeErrorHandler[Data any] interface {
	Handle(ctx context.Context, nodeID string, failedItem Data, err error, attempt int) (NodeDecision, error)
}

// NodeErrorHandlerFunc adapts a plain function to NodeErrorHandler.
type NodeErrorHandlerFunc[Data any] func(ctx context.Context, nodeID string, failedItem Data, err error, attempt int) (NodeDecision, error)

func (f NodeErrorHandlerFunc[Data]) Handle(ctx context.Context, nodeID string, failedItem Data, err error, attempt int) (NodeDecision, error) {
	return f(ctx, nodeID, failedItem, err, attempt)
}

// PipelineErrorHandler decides what to do about a node-level failure
// (item retries exhausted, or a non-item failure from the node
// itself).
type PipelineErrorHandler interface {
	HandleNodeFailure(ctx context.Context, nodeID string, err error) (PipelineDecision, error)
}

// PipelineErrorHandlerFunc adapts a plain function to PipelineErrorHandler.
type PipelineErrorHandlerFunc func(ctx context.Context, nodeID string, err error) (PipelineDecision, error)

func (f PipelineErrorHandlerFunc) HandleNodeFailure(ctx context.Context, nodeID string, err error) (PipelineDecision, error) {
	return f(ctx, nodeID, err)
}

// DeadLetterRecord is what a DeadLetterSink receives: the failing
// item (boxed — consumers type-switch on it, mirroring how the source
// material routes heterogeneous events through one channel), the
// error that caused it to be dead-lettered, the node that produced
// it, and the attempt number at which it gave up.
type DeadLetterRecord struct {
	ID        string // ULID, time-sortable so operators can order drains without a wall clock
	Item      any
	Err       error
	NodeID    string
	Attempt   int
}

// NewDeadLetterRecord stamps a record with a fresh ULID.
func NewDeadLetterRecord(item any, err error, nodeID string, attempt int) DeadLetterRecord {
	return DeadLetterRecord{
		ID:      ulid.Make().String(),
		Item:    item,
		Err:     err,
		NodeID:  nodeID,
		Attempt: attempt,
	}
}

// DeadLetterSink receives items the pipeline decided not to process.
// It must be safe to call concurrently (§5). Delivery is at-least-once
// per spec.md's open question: a handler may itself retry, and the
// core does not deduplicate.
type DeadLetterSink interface {
	Send(ctx context.Context, record DeadLetterRecord) error
}

// DeadLetterSinkFunc adapts a plain function to DeadLetterSink.
type DeadLetterSinkFunc func(ctx context.Context, record DeadLetterRecord) error

func (f DeadLetterSinkFunc) Send(ctx context.Context, record DeadLetterRecord) error {
	return f(ctx, record)
}

// ConfigurationError is raised when a node's declared strategy cannot
// be satisfied at run time — e.g. RestartNode selected without a
// positive MaxMaterializedItems. It names the node and the missing
// requirement so operators do not have to reconstruct context from a
// bare error string.
type ConfigurationError struct {
	NodeID  string
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("node %q: missing required configuration: %s", e.NodeID, e.Missing)
}

// DefaultDeadLetterSink is an in-memory, goroutine-safe DeadLetterSink
// useful for tests and as the zero-config default. Production sinks
// (durable queues, object storage) are external collaborators.
type DefaultDeadLetterSink struct {
	mu      sync.Mutex
	records []DeadLetterRecord
}

// NewDefaultDeadLetterSink builds an empty DefaultDeadLetterSink.
func NewDefaultDeadLetterSink() *DefaultDeadLetterSink {
	return &DefaultDeadLetterSink{}
}

func (s *DefaultDeadLetterSink) Send(_ context.Context, record DeadLetterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a snapshot of every record received so far.
func (s *DefaultDeadLetterSink) Records() []DeadLetterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetterRecord, len(s.records))
	copy(out, s.records)
	return out
}

// IsCancellation reports whether err represents pipeline cancellation
// rather than a data or node failure. Sinks should re-surface this
// unwrapped instead of treating it as a fatal node error.
func IsCancellation(err error) bool {
	return errors.Is(err, pipe.ErrCancelled) || errors.Is(err, context.Canceled)
}

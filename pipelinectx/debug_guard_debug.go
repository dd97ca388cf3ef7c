//go:build debug

package pipelinectx

import "github.com/npipeline/engine/internal/xlog"

// DebugGuard re-reads the mutable fields NodeExecutionSnapshot
// captured and reports any mismatch at node-exit. It only exists under
// the debug build tag; release builds get the no-op in
// debug_guard_release.go so the comparison never costs anything in
// production.
func (pc *PipelineContext) DebugGuard(snap NodeExecutionSnapshot) func() {
	return func() {
		now := pc.Snapshot(snap.NodeID)
		logger := pc.LoggerFor(snap.NodeID)
		if now.TracingOn != snap.TracingOn {
			logger.Warn("node changed tracing visibility during execution", xlog.String("node", snap.NodeID))
		}
		if now.LoggingOn != snap.LoggingOn {
			logger.Warn("node changed logging visibility during execution", xlog.String("node", snap.NodeID))
		}
		if retryOptionsChanged(now.RetryOptions, snap.RetryOptions) {
			logger.Warn("node mutated shared RetryOptions during execution", xlog.String("node", snap.NodeID))
		}
	}
}

// retryOptionsChanged compares the numeric bounds only: RetryOptions
// carries a func field and a pointer, neither directly comparable
// with ==, and neither is what this guard cares about (it is
// watching for a node clobbering the shared numeric configuration).
func retryOptionsChanged(a, b RetryOptions) bool {
	return a.MaxItemRetries != b.MaxItemRetries ||
		a.MaxNodeRestartAttempts != b.MaxNodeRestartAttempts ||
		a.MaxSequentialNodeAttempts != b.MaxSequentialNodeAttempts ||
		a.MaxMaterializedItems != b.MaxMaterializedItems
}

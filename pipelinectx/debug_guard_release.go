//go:build !debug

package pipelinectx

// DebugGuard is a no-op outside the debug build tag: production builds
// pay nothing for the node-exit consistency check debug builds perform
// (see debug_guard_debug.go).
func (pc *PipelineContext) DebugGuard(snap NodeExecutionSnapshot) func() {
	return func() {}
}

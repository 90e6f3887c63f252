package core

import "context"

// Execution-context propagation is explicit: the identity of the currently
// running agent travels through context.Context values rather than any
// ambient thread-local state, so Emit can attribute events without the
// emitter naming itself at every call site.

type executionContextKey struct{}

// WithExecutionContext returns a context carrying ec. Pass the result into
// every call boundary below the agent that owns ec.
func WithExecutionContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, ec)
}

// ExecutionContextFrom extracts the execution context stored by
// WithExecutionContext, if any.
func ExecutionContextFrom(ctx context.Context) (*ExecutionContext, bool) {
	ec, ok := ctx.Value(executionContextKey{}).(*ExecutionContext)
	return ec, ok
}

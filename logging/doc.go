// Package logging provides a tiny abstraction over slog so the coordination
// core can depend on a minimal interface (Logger) while callers plug in any
// structured logger. It also offers a richer AgentLoopLogger with contextual
// helpers (component, invocation) and domain specific helpers for call
// attempts, retries and event delivery.
package logging

// Package core defines the event model shared by the coordination layer:
// the Event union (request, response and observability variants), priority
// and direction enums, execution-context attribution for nested agents, and
// the immutable AgentLoopState snapshot consumed by loop middleware.
package core

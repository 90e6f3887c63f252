package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders event delivery. Smaller values are more urgent; the
// coordinator fully drains one level before touching the next.
type Priority int

const (
	// PriorityImmediate preempts everything else (fatal errors, shutdown).
	PriorityImmediate Priority = iota
	// PriorityControl carries interruptions, permission traffic and other
	// control-plane signals.
	PriorityControl
	// PriorityNormal is the default for content and tool events.
	PriorityNormal
	// PriorityBackground carries telemetry that may lag arbitrarily.
	PriorityBackground

	numPriorities = 4
)

// String returns the string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityControl:
		return "control"
	case PriorityNormal:
		return "normal"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the four defined levels.
func (p Priority) Valid() bool { return p >= PriorityImmediate && p < numPriorities }

// Direction marks which way an event flows relative to the pipeline.
type Direction int

const (
	// DirectionDownstream is normal data flow toward consumers.
	DirectionDownstream Direction = iota
	// DirectionUpstream flows back toward the originator (cancellation,
	// interruption signals).
	DirectionUpstream
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == DirectionUpstream {
		return "upstream"
	}
	return "downstream"
}

// ExecutionContext attributes an event to the (possibly nested) agent that
// emitted it. Depth > 0 marks a sub-agent event.
type ExecutionContext struct {
	AgentName     string   `json:"agent_name"`
	AgentID       string   `json:"agent_id"`
	ParentAgentID string   `json:"parent_agent_id,omitempty"`
	AgentChain    []string `json:"agent_chain,omitempty"`
	Depth         int      `json:"depth"`
}

// Child derives the execution context for a nested agent invocation: depth
// one greater, chain extended, parent linked.
func (ec *ExecutionContext) Child(agentName, agentID string) *ExecutionContext {
	chain := make([]string, 0, len(ec.AgentChain)+1)
	chain = append(chain, ec.AgentChain...)
	chain = append(chain, agentName)
	return &ExecutionContext{
		AgentName:     agentName,
		AgentID:       agentID,
		ParentAgentID: ec.AgentID,
		AgentChain:    chain,
		Depth:         ec.Depth + 1,
	}
}

// NewExecutionContext creates a root (depth 0) execution context.
func NewExecutionContext(agentName string) *ExecutionContext {
	return &ExecutionContext{
		AgentName:  agentName,
		AgentID:    NewID(),
		AgentChain: []string{agentName},
	}
}

// EventMeta holds the fields common to every event variant. Embed it (by
// value) in a variant struct; the pointer receiver on Meta makes any such
// pointer satisfy the Event interface. After emission the event should be
// treated as immutable; only the coordinator writes SequenceNumber and fills
// a missing Execution attribution.
type EventMeta struct {
	Priority       Priority          `json:"priority"`
	SequenceNumber uint64            `json:"sequence_number"`
	Direction      Direction         `json:"direction"`
	StreamID       string            `json:"stream_id,omitempty"`
	CanInterrupt   bool              `json:"can_interrupt"`
	Execution      *ExecutionContext `json:"execution,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Meta returns the shared metadata. Implemented on EventMeta so embedding is
// all a variant needs.
func (m *EventMeta) Meta() *EventMeta { return m }

// Event is the tagged union of everything observable on a coordinator
// stream. The set of variants is open: content/turn carriers can be added
// without touching the coordinator, which dispatches on EventMeta alone.
type Event interface {
	Meta() *EventMeta
}

// RequestEvent is implemented by events that suspend their emitter until a
// correlated ResponseEvent arrives (permission prompts, clarification
// questions, continuation approval).
type RequestEvent interface {
	Event
	// RequestID returns the correlation id a responder must echo.
	RequestID() string
	// Describe returns a human-readable summary of the decision needed.
	Describe() string
}

// ResponseEvent is implemented by events answering a RequestEvent.
type ResponseEvent interface {
	Event
	// RequestID returns the correlation id of the request being answered.
	RequestID() string
}

// NewID generates a new unique identifier for events and requests.
func NewID() string { return uuid.NewString() }

func newMeta(p Priority) EventMeta {
	return EventMeta{Priority: p, Timestamp: time.Now().UTC()}
}

// DecisionScope qualifies how long a permission decision holds.
type DecisionScope string

const (
	// ScopeOnce applies the decision to this single call.
	ScopeOnce DecisionScope = "once"
	// ScopeAlways applies the decision to all future calls of the same function.
	ScopeAlways DecisionScope = "always"
)

// PermissionRequestEvent asks an external handler whether a function call
// may proceed.
type PermissionRequestEvent struct {
	EventMeta
	ID        string `json:"id"`
	Function  string `json:"function"`
	Arguments string `json:"arguments,omitempty"`
}

// NewPermissionRequestEvent creates a control-priority permission request
// for the named function with a fresh correlation id.
func NewPermissionRequestEvent(function, arguments string) *PermissionRequestEvent {
	return &PermissionRequestEvent{
		EventMeta: newMeta(PriorityControl),
		ID:        NewID(),
		Function:  function,
		Arguments: arguments,
	}
}

// RequestID implements RequestEvent.
func (e *PermissionRequestEvent) RequestID() string { return e.ID }

// Describe implements RequestEvent.
func (e *PermissionRequestEvent) Describe() string {
	return fmt.Sprintf("permission to call function %q", e.Function)
}

// PermissionResponseEvent carries the decision for a PermissionRequestEvent.
type PermissionResponseEvent struct {
	EventMeta
	ID       string        `json:"id"`
	Approved bool          `json:"approved"`
	Reason   string        `json:"reason,omitempty"`
	Scope    DecisionScope `json:"scope,omitempty"`
}

// NewPermissionResponseEvent creates a response for the given request id.
func NewPermissionResponseEvent(requestID string, approved bool, reason string, scope DecisionScope) *PermissionResponseEvent {
	return &PermissionResponseEvent{
		EventMeta: newMeta(PriorityControl),
		ID:        requestID,
		Approved:  approved,
		Reason:    reason,
		Scope:     scope,
	}
}

// RequestID implements ResponseEvent.
func (e *PermissionResponseEvent) RequestID() string { return e.ID }

// ClarificationRequestEvent asks an external handler a free-form question
// the agent cannot answer on its own.
type ClarificationRequestEvent struct {
	EventMeta
	ID       string `json:"id"`
	Question string `json:"question"`
}

// NewClarificationRequestEvent creates a control-priority clarification
// request with a fresh correlation id.
func NewClarificationRequestEvent(question string) *ClarificationRequestEvent {
	return &ClarificationRequestEvent{
		EventMeta: newMeta(PriorityControl),
		ID:        NewID(),
		Question:  question,
	}
}

// RequestID implements RequestEvent.
func (e *ClarificationRequestEvent) RequestID() string { return e.ID }

// Describe implements RequestEvent.
func (e *ClarificationRequestEvent) Describe() string { return e.Question }

// ClarificationResponseEvent answers a ClarificationRequestEvent.
type ClarificationResponseEvent struct {
	EventMeta
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// NewClarificationResponseEvent creates a response for the given request id.
func NewClarificationResponseEvent(requestID, answer string) *ClarificationResponseEvent {
	return &ClarificationResponseEvent{
		EventMeta: newMeta(PriorityControl),
		ID:        requestID,
		Answer:    answer,
	}
}

// RequestID implements ResponseEvent.
func (e *ClarificationResponseEvent) RequestID() string { return e.ID }

// ContinuationRequestEvent asks whether the agent loop may run past its
// configured iteration ceiling.
type ContinuationRequestEvent struct {
	EventMeta
	ID            string `json:"id"`
	Iteration     int    `json:"iteration"`
	MaxIterations int    `json:"max_iterations"`
}

// NewContinuationRequestEvent creates a control-priority continuation
// request with a fresh correlation id.
func NewContinuationRequestEvent(iteration, maxIterations int) *ContinuationRequestEvent {
	return &ContinuationRequestEvent{
		EventMeta:     newMeta(PriorityControl),
		ID:            NewID(),
		Iteration:     iteration,
		MaxIterations: maxIterations,
	}
}

// RequestID implements RequestEvent.
func (e *ContinuationRequestEvent) RequestID() string { return e.ID }

// Describe implements RequestEvent.
func (e *ContinuationRequestEvent) Describe() string {
	return fmt.Sprintf("continue past iteration %d of %d", e.Iteration, e.MaxIterations)
}

// ContinuationResponseEvent answers a ContinuationRequestEvent.
type ContinuationResponseEvent struct {
	EventMeta
	ID       string `json:"id"`
	Continue bool   `json:"continue"`
	Reason   string `json:"reason,omitempty"`
}

// NewContinuationResponseEvent creates a response for the given request id.
func NewContinuationResponseEvent(requestID string, cont bool, reason string) *ContinuationResponseEvent {
	return &ContinuationResponseEvent{
		EventMeta: newMeta(PriorityControl),
		ID:        requestID,
		Continue:  cont,
		Reason:    reason,
	}
}

// RequestID implements ResponseEvent.
func (e *ContinuationResponseEvent) RequestID() string { return e.ID }

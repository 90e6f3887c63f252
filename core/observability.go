package core

import "time"

// Observability variants are one-way, fire-and-forget and never correlated
// to a response. They exist so dashboards and error-tracking hooks can watch
// the pipeline without being coupled to its control flow.

// CallKind distinguishes the two callable collaborators the pipeline wraps.
type CallKind string

const (
	// CallKindModel is a model/provider invocation.
	CallKindModel CallKind = "model"
	// CallKindFunction is a tool/function invocation.
	CallKindFunction CallKind = "function"
)

// CallStartedEvent records the start of one logical call through the
// pipeline (before any retry attempt).
type CallStartedEvent struct {
	EventMeta
	CallID   string   `json:"call_id"`
	Function string   `json:"function"`
	Kind     CallKind `json:"kind"`
}

// NewCallStartedEvent creates a normal-priority call start record.
func NewCallStartedEvent(callID, function string, kind CallKind) *CallStartedEvent {
	return &CallStartedEvent{EventMeta: newMeta(PriorityNormal), CallID: callID, Function: function, Kind: kind}
}

// CallFinishedEvent records the terminal outcome of one logical call. It is
// never dropped on stream interruption.
type CallFinishedEvent struct {
	EventMeta
	CallID   string        `json:"call_id"`
	Function string        `json:"function"`
	Kind     CallKind      `json:"kind"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
}

// NewCallFinishedEvent creates a normal-priority call completion record.
// The error string is the externally visible (possibly sanitized) message.
func NewCallFinishedEvent(callID, function string, kind CallKind, dur time.Duration, attempts int, err error) *CallFinishedEvent {
	ev := &CallFinishedEvent{
		EventMeta: newMeta(PriorityNormal),
		CallID:    callID,
		Function:  function,
		Kind:      kind,
		Duration:  dur,
		Attempts:  attempts,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// RetryAttemptEvent is emitted before each attempt of a retried call,
// carrying the attempt number, the effective ceiling and the delay slept
// before this attempt (zero for the first).
type RetryAttemptEvent struct {
	EventMeta
	Function string        `json:"function"`
	Attempt  int           `json:"attempt"`
	Ceiling  int           `json:"ceiling"`
	Delay    time.Duration `json:"delay"`
	Category string        `json:"category,omitempty"`
	Cause    string        `json:"cause,omitempty"`
}

// NewRetryAttemptEvent creates a background-priority retry attempt record.
func NewRetryAttemptEvent(function string, attempt, ceiling int, delay time.Duration, category, cause string) *RetryAttemptEvent {
	return &RetryAttemptEvent{
		EventMeta: newMeta(PriorityBackground),
		Function:  function,
		Attempt:   attempt,
		Ceiling:   ceiling,
		Delay:     delay,
		Category:  category,
		Cause:     cause,
	}
}

// RetryExhaustedEvent is emitted once when a call gives up, after the last
// failed attempt.
type RetryExhaustedEvent struct {
	EventMeta
	Function string `json:"function"`
	Attempts int    `json:"attempts"`
	Ceiling  int    `json:"ceiling"`
	Cause    string `json:"cause,omitempty"`
}

// NewRetryExhaustedEvent creates a background-priority exhaustion record.
func NewRetryExhaustedEvent(function string, attempts, ceiling int, cause string) *RetryExhaustedEvent {
	return &RetryExhaustedEvent{
		EventMeta: newMeta(PriorityBackground),
		Function:  function,
		Attempts:  attempts,
		Ceiling:   ceiling,
		Cause:     cause,
	}
}

// CallTimedOutEvent records a single attempt hitting its deadline.
type CallTimedOutEvent struct {
	EventMeta
	Function string        `json:"function"`
	Limit    time.Duration `json:"limit"`
}

// NewCallTimedOutEvent creates a background-priority timeout record.
func NewCallTimedOutEvent(function string, limit time.Duration) *CallTimedOutEvent {
	return &CallTimedOutEvent{EventMeta: newMeta(PriorityBackground), Function: function, Limit: limit}
}

// TextDeltaEvent is one fragment of a model response stream. It is
// interruptible: when its stream is interrupted, undelivered fragments are
// silently dropped.
type TextDeltaEvent struct {
	EventMeta
	Text string `json:"text"`
}

// NewTextDeltaEvent creates a normal-priority interruptible stream fragment.
func NewTextDeltaEvent(streamID, text string) *TextDeltaEvent {
	m := newMeta(PriorityNormal)
	m.StreamID = streamID
	m.CanInterrupt = true
	return &TextDeltaEvent{EventMeta: m, Text: text}
}

// StreamCompletedEvent terminates one stream. It must always be delivered,
// even after interruption, so consumers can release per-stream state.
type StreamCompletedEvent struct {
	EventMeta
	Interrupted bool   `json:"interrupted"`
	Error       string `json:"error,omitempty"`
}

// NewStreamCompletedEvent creates a non-interruptible stream terminator.
func NewStreamCompletedEvent(streamID string, interrupted bool, err error) *StreamCompletedEvent {
	m := newMeta(PriorityNormal)
	m.StreamID = streamID
	ev := &StreamCompletedEvent{EventMeta: m, Interrupted: interrupted}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// InterruptEvent signals that a stream should stop producing. It flows
// upstream at control priority so it overtakes queued telemetry.
type InterruptEvent struct {
	EventMeta
	Reason string `json:"reason,omitempty"`
}

// NewInterruptEvent creates an upstream control-priority interrupt signal
// for the given stream.
func NewInterruptEvent(streamID, reason string) *InterruptEvent {
	m := newMeta(PriorityControl)
	m.StreamID = streamID
	m.Direction = DirectionUpstream
	return &InterruptEvent{EventMeta: m, Reason: reason}
}

// ErrorEvent surfaces a failure for observers. The message is the externally
// visible text; error-tracking hooks that need the original error take it
// from the pipeline result, not from the event stream.
type ErrorEvent struct {
	EventMeta
	Message string `json:"message"`
}

// NewErrorEvent creates an immediate-priority error record.
func NewErrorEvent(message string) *ErrorEvent {
	return &ErrorEvent{EventMeta: newMeta(PriorityImmediate), Message: message}
}

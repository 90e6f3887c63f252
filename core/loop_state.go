package core

// AgentLoopState is an immutable snapshot of one agent loop's progress. The
// loop driver is the sole writer: middleware reads a snapshot and expresses
// a desired change by returning a new one built with the With* methods; the
// driver applies it between iterations. Circuit breakers are built on
// ConsecutiveFailures by the calling layer.
type AgentLoopState struct {
	Iteration           int
	MaxIterations       int
	ConsecutiveFailures int
	Terminated          bool
	TerminationReason   string
	CompletedFunctions  []string
}

// NewAgentLoopState creates the initial snapshot for a loop bounded by
// maxIterations.
func NewAgentLoopState(maxIterations int) AgentLoopState {
	return AgentLoopState{MaxIterations: maxIterations}
}

func (s AgentLoopState) clone() AgentLoopState {
	c := s
	c.CompletedFunctions = append([]string(nil), s.CompletedFunctions...)
	return c
}

// WithIteration returns a copy advanced to iteration n.
func (s AgentLoopState) WithIteration(n int) AgentLoopState {
	c := s.clone()
	c.Iteration = n
	return c
}

// WithMaxIterations returns a copy with a new iteration ceiling (used when a
// continuation approval extends the loop).
func (s AgentLoopState) WithMaxIterations(n int) AgentLoopState {
	c := s.clone()
	c.MaxIterations = n
	return c
}

// WithFailure returns a copy with ConsecutiveFailures incremented.
func (s AgentLoopState) WithFailure() AgentLoopState {
	c := s.clone()
	c.ConsecutiveFailures++
	return c
}

// WithCompletedFunction returns a copy with the failure streak reset and the
// function recorded as completed.
func (s AgentLoopState) WithCompletedFunction(name string) AgentLoopState {
	c := s.clone()
	c.ConsecutiveFailures = 0
	c.CompletedFunctions = append(c.CompletedFunctions, name)
	return c
}

// WithTermination returns a terminated copy carrying the reason.
func (s AgentLoopState) WithTermination(reason string) AgentLoopState {
	c := s.clone()
	c.Terminated = true
	c.TerminationReason = reason
	return c
}

// Exhausted reports whether the iteration ceiling has been reached.
func (s AgentLoopState) Exhausted() bool {
	return s.MaxIterations > 0 && s.Iteration >= s.MaxIterations
}

package tool

import (
	"context"
	"time"

	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// Context gives a running tool access to cancellation, the event stream and
// the correlation id linking the model's function call to this execution.
type Context struct {
	ctx    context.Context
	coord  *coordinator.Coordinator
	callID string
	logger logging.Logger
}

// NewContext creates a tool context. coord may be nil for tools executed
// outside an event stream (tests, direct invocation).
func NewContext(ctx context.Context, coord *coordinator.Coordinator, callID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{ctx: ctx, coord: coord, callID: callID, logger: logger}
}

// Context returns the cancellation context for this call.
func (c *Context) Context() context.Context { return c.ctx }

// FunctionCallID returns the id correlating the model's function call with
// this execution.
func (c *Context) FunctionCallID() string { return c.callID }

// Logger returns the invocation-scoped logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// Emit publishes an event on the coordinator stream. A nil coordinator makes
// this a no-op so tools stay testable in isolation.
func (c *Context) Emit(ev core.Event) error {
	if c.coord == nil {
		return nil
	}
	return c.coord.Emit(c.ctx, ev)
}

// Ask suspends the tool on a clarification question until an external
// handler answers, the timeout elapses or the call is cancelled.
func (c *Context) Ask(question string, timeout time.Duration) (string, error) {
	if c.coord == nil {
		return "", coordinator.ErrClosed
	}

	req := core.NewClarificationRequestEvent(question)
	if err := c.coord.Emit(c.ctx, req); err != nil {
		return "", err
	}

	resp, err := coordinator.WaitForResponse[*core.ClarificationResponseEvent](c.ctx, c.coord, req.RequestID(), timeout)
	if err != nil {
		return "", err
	}

	return resp.Answer, nil
}

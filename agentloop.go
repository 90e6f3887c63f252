// Package agentloop provides a high-level façade over the event coordinator,
// the resilient call pipeline and the agent loop driver. Most applications
// interact with this package by:
//  1. Creating an AgentLoop via New() (optionally tuning retry, timeout,
//     parallelism and logging)
//  2. Registering tools and binding a model
//  3. Running prompts (Run) while consuming the event stream (Events) and
//     answering request events (Respond)
//
// The façade delegates event distribution to coordinator.Coordinator and
// call resilience to pipeline.Pipeline while keeping setup concise. All
// defaults are safe for local development and testing.
package agentloop

import (
	"context"
	"time"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/errfmt"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/pipeline"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures the AgentLoop instance.
type Options struct {
	// Retry configures the retry policy for all model and tool calls.
	Retry retry.Config

	// CallTimeout bounds each individual call attempt. Zero disables the
	// guard.
	CallTimeout time.Duration

	// ErrorMode selects sanitized (default) or detailed externally visible
	// failure text.
	ErrorMode errfmt.Mode

	// MaxParallelCalls limits concurrently executing calls across the whole
	// loop. Set to 0 for unlimited.
	MaxParallelCalls int

	// EventBufferSize sets the channel buffer for event delivery. Larger
	// buffers reduce blocking but increase memory usage.
	EventBufferSize int

	// Agent customizes the loop driver (iterations, breaker, continuation).
	Agent []func(o *agent.Options)

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentLoop is the high-level façade aggregating the coordinator, the call
// pipeline and one loop driver.
type AgentLoop struct {
	opts  Options
	coord *coordinator.Coordinator
	pipe  *pipeline.Pipeline
	loop  *agent.Loop
}

// New creates a new AgentLoop driving mdl under the given agent name.
func New(name string, mdl model.Model, optFns ...func(o *Options)) (*AgentLoop, error) {
	opts := Options{
		Retry:           retry.DefaultConfig(),
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	coord := coordinator.New(func(o *coordinator.Options) {
		o.BufferSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})

	pipe, err := pipeline.New(coord, func(o *pipeline.Options) {
		o.Retry = opts.Retry
		o.Timeout = opts.CallTimeout
		o.ErrorMode = opts.ErrorMode
		o.MaxParallelCalls = opts.MaxParallelCalls
		o.Logger = opts.Logger
	})
	if err != nil {
		coord.Close()
		return nil, err
	}

	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) {
		o.Logger = opts.Logger
	}}, opts.Agent...)

	return &AgentLoop{
		opts:  opts,
		coord: coord,
		pipe:  pipe,
		loop:  agent.NewLoop(name, mdl, coord, pipe, agentOpts...),
	}, nil
}

// RegisterTool makes t callable by the model. Call before Run.
func (a *AgentLoop) RegisterTool(t tool.Tool) { a.loop.RegisterTool(t) }

// Events returns the delivery stream. Consumers must drain it; request
// events on the stream expect an answer via Respond.
func (a *AgentLoop) Events() <-chan core.Event { return a.coord.Events() }

// Respond answers a pending request event. Responses addressed to unknown
// or expired request ids are silently discarded.
func (a *AgentLoop) Respond(requestID string, ev core.ResponseEvent) {
	a.coord.SendResponse(requestID, ev)
}

// Emit publishes an event on the stream (external signals, interrupts).
func (a *AgentLoop) Emit(ctx context.Context, ev core.Event) error {
	return a.coord.Emit(ctx, ev)
}

// InterruptStream drops queued and future interruptible events of a stream.
func (a *AgentLoop) InterruptStream(streamID string) { a.coord.InterruptStream(streamID) }

// Run drives the loop to completion for the given prompt.
func (a *AgentLoop) Run(ctx context.Context, prompt string) (*agent.Result, error) {
	return a.loop.Run(ctx, prompt)
}

// Child creates a nested agent whose events bubble into this loop's stream
// tagged with their nesting depth.
func (a *AgentLoop) Child(name string, mdl model.Model, optFns ...func(o *agent.Options)) *agent.Loop {
	return a.loop.Child(name, mdl, optFns...)
}

// Close stops event delivery after draining queued events.
func (a *AgentLoop) Close() { a.coord.Close() }

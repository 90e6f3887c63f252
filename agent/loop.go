// Package agent drives the iterative model/tool loop on top of the
// coordinator and the call pipeline: call the model, execute the function
// calls it requested, feed the results back, repeat until the model is done
// or a guard (iteration ceiling, failure breaker, cancellation) stops it.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/pipeline"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures a Loop.
type Options struct {
	// MaxIterations bounds the loop. On exhaustion the loop either stops or,
	// with AllowContinuation, asks an external handler for an extension.
	MaxIterations int

	// MaxConsecutiveFailures trips the circuit breaker: that many model-call
	// failures in a row terminate the loop.
	MaxConsecutiveFailures int

	// AllowContinuation emits a ContinuationRequestEvent at the iteration
	// ceiling instead of stopping outright.
	AllowContinuation bool

	// ContinuationTimeout bounds the wait for a continuation decision; an
	// unanswered request counts as "stop".
	ContinuationTimeout time.Duration

	// System is the system prompt sent with every model request.
	System string

	// Executor customizes function-call execution (parallelism, ordering,
	// permission gating).
	Executor []func(o *ExecutorOptions)

	// Logger receives loop diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Result is the terminal outcome of one loop run.
type Result struct {
	// Output is the final assistant text.
	Output string

	// State is the last loop state snapshot, carrying iteration count,
	// completed functions and the termination reason.
	State core.AgentLoopState
}

// Loop is the iterative driver for one agent. It owns the loop state: state
// snapshots are immutable and replaced between iterations, never mutated in
// place.
type Loop struct {
	name  string
	mdl   model.Model
	tools map[string]tool.Tool
	coord *coordinator.Coordinator
	pipe  *pipeline.Pipeline
	exec  *Executor
	opts  Options
}

// NewLoop creates a loop driving mdl through coord and pipe.
func NewLoop(name string, mdl model.Model, coord *coordinator.Coordinator, pipe *pipeline.Pipeline, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxIterations:          10,
		MaxConsecutiveFailures: 3,
		ContinuationTimeout:    30 * time.Second,
		Logger:                 logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	execOpts := append([]func(o *ExecutorOptions){func(o *ExecutorOptions) {
		o.Logger = opts.Logger
	}}, opts.Executor...)

	return &Loop{
		name:  name,
		mdl:   mdl,
		tools: map[string]tool.Tool{},
		coord: coord,
		pipe:  pipe,
		exec:  NewExecutor(coord, pipe, execOpts...),
		opts:  opts,
	}
}

// Name returns the agent name used for execution attribution.
func (l *Loop) Name() string { return l.name }

// RegisterTool makes t callable by the model. Not safe to call concurrently
// with Run.
func (l *Loop) RegisterTool(t tool.Tool) {
	l.tools[t.Name()] = t
}

// Child creates a nested loop whose events bubble into this loop's
// coordinator tagged with their nesting depth.
func (l *Loop) Child(name string, mdl model.Model, optFns ...func(o *Options)) *Loop {
	return NewLoop(name, mdl, l.coord.NewChild(), l.pipe, optFns...)
}

// Run drives the loop to completion for the given user prompt. The returned
// error reflects loop-level failure (breaker tripped, cancellation); a model
// that finishes normally yields a nil error even if individual function
// calls failed along the way.
func (l *Loop) Run(ctx context.Context, prompt string) (*Result, error) {
	ctx = l.withExecution(ctx)
	logger := l.opts.Logger

	state := core.NewAgentLoopState(l.opts.MaxIterations)
	req := model.Request{
		System:   l.opts.System,
		Messages: []model.Message{{Role: model.RoleUser, Text: prompt}},
		Tools:    l.toolDefinitions(),
	}

	streamID := core.NewID()
	output := ""

	for {
		if err := ctx.Err(); err != nil {
			state = state.WithTermination("cancelled")
			return &Result{Output: output, State: state}, err
		}

		if state.Exhausted() {
			extended, newState := l.requestContinuation(ctx, state)
			state = newState
			if !extended {
				state = state.WithTermination("max iterations reached")
				logger.Info("agent.loop.exhausted", "agent", l.name, "iterations", state.Iteration)
				return &Result{Output: output, State: state}, nil
			}
		}

		state = state.WithIteration(state.Iteration + 1)
		logger.Debug("agent.loop.iteration", "agent", l.name, "iteration", state.Iteration)

		resp, err := l.generate(ctx, req)
		if err != nil {
			state = state.WithFailure()
			l.emit(ctx, core.NewErrorEvent(err.Error()))

			if state.ConsecutiveFailures >= l.opts.MaxConsecutiveFailures {
				state = state.WithTermination("too many consecutive failures")
				logger.Error("agent.loop.breaker", "agent", l.name, "failures", state.ConsecutiveFailures)
				return &Result{Output: output, State: state}, fmt.Errorf("agent %q: %d consecutive model failures: %w", l.name, state.ConsecutiveFailures, err)
			}
			continue
		}

		req.Messages = append(req.Messages, resp.Message)

		if resp.Message.Text != "" {
			output = resp.Message.Text
			l.emit(ctx, core.NewTextDeltaEvent(streamID, resp.Message.Text))
		}

		if resp.Done || len(resp.Message.FunctionCalls) == 0 {
			state = state.WithTermination("completed")
			l.emit(ctx, core.NewStreamCompletedEvent(streamID, false, nil))
			logger.Info("agent.loop.completed", "agent", l.name, "iterations", state.Iteration)
			return &Result{Output: output, State: state}, nil
		}

		results := l.exec.ExecuteBatch(ctx, l.tools, resp.Message.FunctionCalls)
		for _, res := range results {
			fr := &model.FunctionResponse{CallID: res.ID, Name: res.Name, Result: res.Value}
			if res.Err != nil {
				fr.Error = res.Err.Error()
				state = state.WithFailure()
			} else {
				state = state.WithCompletedFunction(res.Name)
			}
			req.Messages = append(req.Messages, model.Message{Role: model.RoleTool, FunctionResponse: fr})
		}
	}
}

// generate runs one model call through the pipeline.
func (l *Loop) generate(ctx context.Context, req model.Request) (*model.Response, error) {
	info := l.mdl.Info()

	value, err := l.pipe.Execute(ctx, pipeline.Call{
		Name: fmt.Sprintf("%s/%s", info.Provider, info.Name),
		Kind: core.CallKindModel,
		Fn: func(ctx context.Context) (any, error) {
			return l.mdl.Generate(ctx, req)
		},
	})
	if err != nil {
		return nil, err
	}

	resp, ok := value.(*model.Response)
	if !ok {
		return nil, fmt.Errorf("agent %q: model returned %T", l.name, value)
	}

	return resp, nil
}

// requestContinuation asks an external handler whether to run past the
// ceiling. An approval extends MaxIterations by the original budget.
func (l *Loop) requestContinuation(ctx context.Context, state core.AgentLoopState) (bool, core.AgentLoopState) {
	if !l.opts.AllowContinuation {
		return false, state
	}

	req := core.NewContinuationRequestEvent(state.Iteration, state.MaxIterations)
	if err := l.coord.Emit(ctx, req); err != nil {
		return false, state
	}

	resp, err := coordinator.WaitForResponse[*core.ContinuationResponseEvent](ctx, l.coord, req.RequestID(), l.opts.ContinuationTimeout)
	if err != nil || !resp.Continue {
		return false, state
	}

	l.opts.Logger.Info("agent.loop.extended",
		"agent", l.name,
		"iteration", state.Iteration,
		"new_max", state.MaxIterations+l.opts.MaxIterations,
	)

	return true, state.WithMaxIterations(state.MaxIterations + l.opts.MaxIterations)
}

// withExecution attributes all events of this run to the agent, deriving a
// child context when the run is nested inside another agent's.
func (l *Loop) withExecution(ctx context.Context) context.Context {
	if parent, ok := core.ExecutionContextFrom(ctx); ok {
		return core.WithExecutionContext(ctx, parent.Child(l.name, core.NewID()))
	}
	return core.WithExecutionContext(ctx, core.NewExecutionContext(l.name))
}

func (l *Loop) toolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(l.tools))
	for _, t := range l.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func (l *Loop) emit(ctx context.Context, ev core.Event) {
	if err := l.coord.Emit(ctx, ev); err != nil {
		l.opts.Logger.Debug("agent.emit.dropped", "agent", l.name, "error", err.Error())
	}
}

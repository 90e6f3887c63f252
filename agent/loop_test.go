package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/pipeline"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/tool"
)

func newHarness(t *testing.T) (*coordinator.Coordinator, *pipeline.Pipeline) {
	t.Helper()

	coord := coordinator.New(func(o *coordinator.Options) { o.BufferSize = 256 })
	t.Cleanup(coord.Close)

	pipe, err := pipeline.New(coord, func(o *pipeline.Options) {
		o.Retry = retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	})
	require.NoError(t, err)

	return coord, pipe
}

func sumTool() tool.Tool {
	return tool.NewFunctionTool("calculate_sum", "Add two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ *tool.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
}

func TestLoopRunsToolCallThenCompletes(t *testing.T) {
	coord, pipe := newHarness(t)

	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc-1", "calculate_sum", map[string]any{"a": float64(2), "b": float64(3)}).
			Build()},
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().Text("the sum is 5").Done().Build()},
	)

	loop := NewLoop("adder", mdl, coord, pipe)
	loop.RegisterTool(sumTool())

	res, err := loop.Run(context.Background(), "what is 2+3?")
	require.NoError(t, err)

	assert.Equal(t, "the sum is 5", res.Output)
	assert.True(t, res.State.Terminated)
	assert.Equal(t, "completed", res.State.TerminationReason)
	assert.Equal(t, 2, res.State.Iteration)
	assert.Equal(t, []string{"calculate_sum"}, res.State.CompletedFunctions)
	assert.Equal(t, 2, mdl.Calls())

	// The second request carries the tool result back to the model.
	last := mdl.Requests[1]
	toolMsg := last.Messages[len(last.Messages)-1]
	require.NotNil(t, toolMsg.FunctionResponse)
	assert.Equal(t, "fc-1", toolMsg.FunctionResponse.CallID)
	assert.Equal(t, float64(5), toolMsg.FunctionResponse.Result)
}

func TestLoopStopsAtIterationCeiling(t *testing.T) {
	coord, pipe := newHarness(t)

	// The model keeps requesting work and never finishes.
	steps := make([]testutil.ScriptStep, 5)
	for i := range steps {
		steps[i] = testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc", "calculate_sum", map[string]any{"a": float64(1), "b": float64(1)}).
			Build()}
	}
	mdl := testutil.NewScriptedModel(steps...)

	loop := NewLoop("restless", mdl, coord, pipe, func(o *Options) { o.MaxIterations = 2 })
	loop.RegisterTool(sumTool())

	res, err := loop.Run(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, "max iterations reached", res.State.TerminationReason)
	assert.Equal(t, 2, res.State.Iteration)
	assert.Equal(t, 2, mdl.Calls())
}

func TestLoopCircuitBreaker(t *testing.T) {
	coord, pipe := newHarness(t)

	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Err: errors.New("provider down")},
		testutil.ScriptStep{Err: errors.New("provider down")},
	)

	loop := NewLoop("fragile", mdl, coord, pipe, func(o *Options) {
		o.MaxConsecutiveFailures = 2
	})

	res, err := loop.Run(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, res.State.Terminated)
	assert.Equal(t, "too many consecutive failures", res.State.TerminationReason)
	assert.Equal(t, 2, res.State.ConsecutiveFailures)
}

func TestLoopContinuationApproved(t *testing.T) {
	coord, pipe := newHarness(t)

	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc", "calculate_sum", map[string]any{"a": float64(1), "b": float64(1)}).
			Build()},
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().Text("done after extension").Done().Build()},
	)

	loop := NewLoop("extended", mdl, coord, pipe, func(o *Options) {
		o.MaxIterations = 1
		o.AllowContinuation = true
		o.ContinuationTimeout = time.Second
	})
	loop.RegisterTool(sumTool())

	// External handler approves the continuation request.
	go func() {
		for ev := range coord.Events() {
			if req, ok := ev.(*core.ContinuationRequestEvent); ok {
				coord.SendResponse(req.RequestID(), core.NewContinuationResponseEvent(req.RequestID(), true, "keep going"))
				return
			}
		}
	}()

	res, err := loop.Run(context.Background(), "long task")
	require.NoError(t, err)
	assert.Equal(t, "done after extension", res.Output)
	assert.Equal(t, "completed", res.State.TerminationReason)
	assert.Equal(t, 2, res.State.MaxIterations)
	assert.Equal(t, 2, res.State.Iteration)
}

func TestLoopContinuationDenied(t *testing.T) {
	coord, pipe := newHarness(t)

	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc", "calculate_sum", map[string]any{"a": float64(1), "b": float64(1)}).
			Build()},
	)

	loop := NewLoop("denied", mdl, coord, pipe, func(o *Options) {
		o.MaxIterations = 1
		o.AllowContinuation = true
		o.ContinuationTimeout = time.Second
	})
	loop.RegisterTool(sumTool())

	go func() {
		for ev := range coord.Events() {
			if req, ok := ev.(*core.ContinuationRequestEvent); ok {
				coord.SendResponse(req.RequestID(), core.NewContinuationResponseEvent(req.RequestID(), false, "enough"))
				return
			}
		}
	}()

	res, err := loop.Run(context.Background(), "long task")
	require.NoError(t, err)
	assert.Equal(t, "max iterations reached", res.State.TerminationReason)
	assert.Equal(t, 1, res.State.Iteration)
}

func TestLoopContinuationUnansweredCountsAsStop(t *testing.T) {
	coord, pipe := newHarness(t)

	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc", "calculate_sum", map[string]any{"a": float64(1), "b": float64(1)}).
			Build()},
	)

	loop := NewLoop("ignored", mdl, coord, pipe, func(o *Options) {
		o.MaxIterations = 1
		o.AllowContinuation = true
		o.ContinuationTimeout = 50 * time.Millisecond
	})
	loop.RegisterTool(sumTool())

	res, err := loop.Run(context.Background(), "long task")
	require.NoError(t, err)
	assert.Equal(t, "max iterations reached", res.State.TerminationReason)
}

func TestLoopCancellation(t *testing.T) {
	coord, pipe := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mdl := testutil.NewScriptedModel()
	loop := NewLoop("cancelled", mdl, coord, pipe)

	res, err := loop.Run(ctx, "never starts")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", res.State.TerminationReason)
	assert.Equal(t, 0, mdl.Calls())
}

func TestChildLoopEventsBubbleWithDepth(t *testing.T) {
	coord, pipe := newHarness(t)

	child := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().Text("child done").Done().Build()},
	)

	parent := NewLoop("parent", testutil.NewScriptedModel(), coord, pipe)
	sub := parent.Child("sub", child)

	res, err := sub.Run(context.Background(), "nested work")
	require.NoError(t, err)
	assert.Equal(t, "child done", res.Output)

	// The sub-agent's text event reaches the parent stream tagged depth 1.
	deltas, err := testutil.CollectEvents[*core.TextDeltaEvent](coord.Events(), 1, time.Second)
	require.NoError(t, err)
	require.NotNil(t, deltas[0].Meta().Execution)
	assert.Equal(t, 1, deltas[0].Meta().Execution.Depth)
	assert.Equal(t, "sub", deltas[0].Meta().Execution.AgentName)
}

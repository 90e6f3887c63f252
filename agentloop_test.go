package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/tool"
)

func TestFacadeEndToEnd(t *testing.T) {
	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc-1", "greet", map[string]any{"name": "ada"}).
			Build()},
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().Text("greeted ada").Done().Build()},
	)

	al, err := New("greeter", mdl)
	require.NoError(t, err)
	defer al.Close()

	al.RegisterTool(tool.NewFunctionTool("greet", "Greet someone", map[string]any{},
		func(_ *tool.Context, args map[string]any) (any, error) {
			return "hello " + args["name"].(string), nil
		}))

	// Drain the stream in the background; the run does not depend on a
	// consumer keeping up, only on buffer headroom.
	go func() {
		for range al.Events() {
		}
	}()

	res, err := al.Run(context.Background(), "say hi to ada")
	require.NoError(t, err)
	assert.Equal(t, "greeted ada", res.Output)
	assert.Equal(t, []string{"greet"}, res.State.CompletedFunctions)
}

func TestFacadeRejectsInvalidTimeout(t *testing.T) {
	_, err := New("x", testutil.NewScriptedModel(), func(o *Options) {
		o.CallTimeout = -time.Second
	})
	require.Error(t, err)
}

func TestFacadeContinuationViaRespond(t *testing.T) {
	mdl := testutil.NewScriptedModel(
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().
			FunctionCall("fc-1", "noop", nil).
			Build()},
		testutil.ScriptStep{Resp: testutil.NewResponseBuilder().Text("done").Done().Build()},
	)

	al, err := New("bounded", mdl, func(o *Options) {
		o.Agent = []func(o *agent.Options){func(o *agent.Options) {
			o.MaxIterations = 1
			o.AllowContinuation = true
			o.ContinuationTimeout = time.Second
		}}
	})
	require.NoError(t, err)
	defer al.Close()

	al.RegisterTool(tool.NewFunctionTool("noop", "", map[string]any{},
		func(*tool.Context, map[string]any) (any, error) { return nil, nil }))

	go func() {
		for ev := range al.Events() {
			if req, ok := ev.(*core.ContinuationRequestEvent); ok {
				al.Respond(req.RequestID(), core.NewContinuationResponseEvent(req.RequestID(), true, ""))
				return
			}
		}
	}()

	res, err := al.Run(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, 2, res.State.Iteration)
}

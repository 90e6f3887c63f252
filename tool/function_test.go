package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
)

func testContext() *Context {
	return NewContext(context.Background(), nil, "fc-1", nil)
}

func TestFunctionToolCall(t *testing.T) {
	ft := NewFunctionTool("calculate_sum", "Add two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ *Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	assert.Equal(t, "calculate_sum", ft.Name())
	assert.Equal(t, "Add two numbers", ft.Description())
	assert.Contains(t, ft.Parameters(), "properties")

	v, err := ft.Call(testContext(), map[string]any{"a": float64(2), "b": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, float64(5), v)
}

func TestFunctionToolWrapsPlainErrors(t *testing.T) {
	ft := NewFunctionTool("failing", "", map[string]any{},
		func(*Context, map[string]any) (any, error) {
			return nil, errors.New("disk full")
		})

	_, err := ft.Call(testContext(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "failing", toolErr.Tool)
	assert.Contains(t, toolErr.Message, "disk full")
}

func TestFunctionToolForwardsToolErrors(t *testing.T) {
	custom := NewToolError("lookup", "row not found", "NOT_FOUND")
	ft := NewFunctionTool("lookup", "", map[string]any{},
		func(*Context, map[string]any) (any, error) {
			return nil, custom
		})

	_, err := ft.Call(testContext(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr, "custom codes pass through unchanged")
}

func TestToolErrorString(t *testing.T) {
	assert.Equal(t, "tool error [NOT_FOUND] in lookup: gone", NewToolError("lookup", "gone", "NOT_FOUND").Error())
	assert.Equal(t, "tool error in lookup: gone", NewToolError("lookup", "gone", "").Error())
}

func TestContextAskRoundTrip(t *testing.T) {
	coord := coordinator.New()
	defer coord.Close()

	tc := NewContext(context.Background(), coord, "fc-9", nil)

	go func() {
		for ev := range coord.Events() {
			if req, ok := ev.(*core.ClarificationRequestEvent); ok {
				coord.SendResponse(req.RequestID(), core.NewClarificationResponseEvent(req.RequestID(), "use the staging db"))
				return
			}
		}
	}()

	answer, err := tc.Ask("which database?", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "use the staging db", answer)
}

func TestContextAskWithoutCoordinator(t *testing.T) {
	tc := testContext()
	_, err := tc.Ask("anyone there?", 10*time.Millisecond)
	assert.Error(t, err)
}

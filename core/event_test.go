package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityImmediate, PriorityControl, PriorityNormal, PriorityBackground} {
		assert.True(t, p.Valid(), p.String())
	}
	assert.False(t, Priority(-1).Valid())
	assert.False(t, Priority(4).Valid())
}

func TestExecutionContextChild(t *testing.T) {
	root := NewExecutionContext("root")
	require.Equal(t, 0, root.Depth)
	require.Equal(t, []string{"root"}, root.AgentChain)

	child := root.Child("sub", "id-1")
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, root.AgentID, child.ParentAgentID)
	assert.Equal(t, []string{"root", "sub"}, child.AgentChain)

	// Extending the child's chain must not touch the parent's.
	grand := child.Child("subsub", "id-2")
	assert.Equal(t, []string{"root", "sub", "subsub"}, grand.AgentChain)
	assert.Equal(t, []string{"root"}, root.AgentChain)
}

func TestExecutionContextRoundTrip(t *testing.T) {
	ec := NewExecutionContext("worker")
	ctx := WithExecutionContext(context.Background(), ec)

	got, ok := ExecutionContextFrom(ctx)
	require.True(t, ok)
	assert.Same(t, ec, got)

	_, ok = ExecutionContextFrom(context.Background())
	assert.False(t, ok)
}

func TestRequestEventsCarryFreshIDs(t *testing.T) {
	a := NewPermissionRequestEvent("read_file", "")
	b := NewPermissionRequestEvent("read_file", "")
	require.NotEmpty(t, a.RequestID())
	assert.NotEqual(t, a.RequestID(), b.RequestID())
	assert.Equal(t, PriorityControl, a.Meta().Priority)

	resp := NewPermissionResponseEvent(a.RequestID(), true, "", ScopeAlways)
	assert.Equal(t, a.RequestID(), resp.RequestID())
}

func TestInterruptEventFlowsUpstream(t *testing.T) {
	ev := NewInterruptEvent("stream-1", "user stop")
	assert.Equal(t, PriorityControl, ev.Meta().Priority)
	assert.Equal(t, DirectionUpstream, ev.Meta().Direction)
	assert.Equal(t, "stream-1", ev.Meta().StreamID)
}

func TestTextDeltaIsInterruptible(t *testing.T) {
	ev := NewTextDeltaEvent("s", "chunk")
	assert.True(t, ev.Meta().CanInterrupt)

	done := NewStreamCompletedEvent("s", true, nil)
	assert.False(t, done.Meta().CanInterrupt)
}

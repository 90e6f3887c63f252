package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

// plugged creates a coordinator with an unbuffered delivery channel and
// parks its delivery loop on a throwaway background event, so subsequent
// emits queue up before anything else is popped. The caller must read the
// plug first.
func plugged(t *testing.T) *Coordinator {
	t.Helper()

	c := New(func(o *Options) { o.BufferSize = 0 })
	t.Cleanup(c.Close)

	plug := core.NewRetryAttemptEvent("plug", 1, 1, 0, "", "")
	require.NoError(t, c.Emit(context.Background(), plug))

	// Give the delivery loop time to pop the plug and park on the
	// unbuffered channel.
	time.Sleep(50 * time.Millisecond)

	return c
}

func TestEmitValidation(t *testing.T) {
	c := New()
	defer c.Close()

	assert.ErrorIs(t, c.Emit(context.Background(), nil), ErrNilEvent)

	bad := core.NewErrorEvent("x")
	bad.Meta().Priority = core.Priority(9)
	assert.Error(t, c.Emit(context.Background(), bad))
}

func TestEmitAfterClose(t *testing.T) {
	c := New()
	c.Close()

	err := c.Emit(context.Background(), core.NewErrorEvent("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStrictPriorityOrdering(t *testing.T) {
	c := plugged(t)
	ctx := context.Background()

	b1 := core.NewRetryAttemptEvent("b1", 1, 1, 0, "", "")
	i1 := core.NewErrorEvent("i1")
	n1 := core.NewCallStartedEvent("n1", "fn", core.CallKindFunction)
	i2 := core.NewErrorEvent("i2")

	for _, ev := range []core.Event{b1, i1, n1, i2} {
		require.NoError(t, c.Emit(ctx, ev))
	}

	<-c.Events() // discard the plug

	got := make([]core.Event, 0, 4)
	for i := 0; i < 4; i++ {
		select {
		case ev := <-c.Events():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("stalled after %d events", len(got))
		}
	}

	// Immediate events first in emission order, then normal, then background.
	require.Equal(t, []core.Event{i1, i2, n1, b1}, got)
}

func TestFIFOWithinPriority(t *testing.T) {
	c := plugged(t)
	ctx := context.Background()

	evs := make([]core.Event, 5)
	for i := range evs {
		evs[i] = core.NewCallStartedEvent(core.NewID(), "fn", core.CallKindFunction)
		require.NoError(t, c.Emit(ctx, evs[i]))
	}

	<-c.Events()

	for i := range evs {
		got := <-c.Events()
		assert.Same(t, evs[i], got, "position %d", i)
	}
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	c := New()
	defer c.Close()
	ctx := context.Background()

	var last uint64
	for i := 0; i < 10; i++ {
		ev := core.NewCallStartedEvent(core.NewID(), "fn", core.CallKindModel)
		require.NoError(t, c.Emit(ctx, ev))
		require.Greater(t, ev.Meta().SequenceNumber, last)
		last = ev.Meta().SequenceNumber
	}
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	c := New(func(o *Options) { o.BufferSize = 16 })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Emit(ctx, core.NewErrorEvent("x")))
	}
	c.Close()

	n := 0
	for range c.Events() {
		n++
	}
	assert.Equal(t, 5, n)
}

func TestRequestResponseCorrelation(t *testing.T) {
	c := New()
	defer c.Close()

	req := core.NewPermissionRequestEvent("delete_file", `{"path":"/tmp/x"}`)
	require.NoError(t, c.Emit(context.Background(), req))

	go func() {
		// Simulate an external handler answering after a beat.
		time.Sleep(20 * time.Millisecond)
		c.SendResponse(req.RequestID(), core.NewPermissionResponseEvent(req.RequestID(), true, "ok", core.ScopeOnce))
	}()

	resp, err := WaitForResponse[*core.PermissionResponseEvent](context.Background(), c, req.RequestID(), time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, req.RequestID(), resp.RequestID())
	assert.Equal(t, 0, c.PendingRequests())
}

func TestWaitForResponseTimeout(t *testing.T) {
	c := New()
	defer c.Close()

	_, err := WaitForResponse[*core.PermissionResponseEvent](context.Background(), c, "req-1", 30*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Equal(t, 0, c.PendingRequests())

	// A response arriving after the timeout is silently dropped.
	c.SendResponse("req-1", core.NewPermissionResponseEvent("req-1", true, "", core.ScopeOnce))
}

func TestWaitForResponseCancellation(t *testing.T) {
	c := New()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WaitForResponse[*core.PermissionResponseEvent](ctx, c, "req-2", time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestWaitForResponseTypeMismatch(t *testing.T) {
	c := New()
	defer c.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.SendResponse("req-3", core.NewClarificationResponseEvent("req-3", "wrong variant"))
	}()

	_, err := WaitForResponse[*core.PermissionResponseEvent](context.Background(), c, "req-3", time.Second)
	require.ErrorIs(t, err, ErrResponseTypeMismatch)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestWaitForResponseDuplicateID(t *testing.T) {
	c := New()
	defer c.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := WaitForResponse[*core.PermissionResponseEvent](context.Background(), c, "dup", 200*time.Millisecond)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := WaitForResponse[*core.PermissionResponseEvent](context.Background(), c, "dup", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	require.ErrorIs(t, <-errs, ErrWaitTimeout)
}

func TestSendResponseUnknownIDIsNoOp(t *testing.T) {
	c := New()
	defer c.Close()

	// Must not panic, block or surface an error.
	c.SendResponse("never-registered", core.NewPermissionResponseEvent("never-registered", false, "", core.ScopeOnce))
	c.SendResponse("x", nil)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestBubblingToParent(t *testing.T) {
	parent := New()
	defer parent.Close()
	child := parent.NewChild()
	defer child.Close()

	require.Equal(t, 1, child.Depth())

	ctx := core.WithExecutionContext(context.Background(), core.NewExecutionContext("sub"))
	ev := core.NewCallStartedEvent(core.NewID(), "fn", core.CallKindFunction)
	require.NoError(t, child.Emit(ctx, ev))

	fromChild := <-child.Events()
	fromParent := <-parent.Events()
	assert.Same(t, ev, fromChild)
	assert.Same(t, ev, fromParent)

	// Depth tagging marks the event as coming from one level down.
	require.NotNil(t, fromParent.Meta().Execution)
	assert.Equal(t, 1, fromParent.Meta().Execution.Depth)
	assert.Equal(t, "sub", fromParent.Meta().Execution.AgentName)
}

func TestBubblingSharesPendingTable(t *testing.T) {
	parent := New()
	defer parent.Close()
	child := parent.NewChild()
	defer child.Close()

	req := core.NewClarificationRequestEvent("which file?")
	require.NoError(t, child.Emit(context.Background(), req))

	// The root-level handler answers a request registered at depth 1.
	go func() {
		time.Sleep(20 * time.Millisecond)
		parent.SendResponse(req.RequestID(), core.NewClarificationResponseEvent(req.RequestID(), "the second one"))
	}()

	resp, err := WaitForResponse[*core.ClarificationResponseEvent](context.Background(), child, req.RequestID(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "the second one", resp.Answer)
}

func TestInterruptDropsFutureInterruptibleEvents(t *testing.T) {
	c := New()
	defer c.Close()
	ctx := context.Background()

	c.InterruptStream("s1")

	require.NoError(t, c.Emit(ctx, core.NewTextDeltaEvent("s1", "dropped")))
	require.NoError(t, c.Emit(ctx, core.NewTextDeltaEvent("s1", "also dropped")))
	done := core.NewStreamCompletedEvent("s1", true, nil)
	require.NoError(t, c.Emit(ctx, done))

	got := <-c.Events()
	assert.Same(t, done, got, "completion must survive interruption")
}

func TestInterruptPurgesQueuedInterruptibleEvents(t *testing.T) {
	c := plugged(t)
	ctx := context.Background()

	require.NoError(t, c.Emit(ctx, core.NewTextDeltaEvent("s2", "queued")))
	done := core.NewStreamCompletedEvent("s2", true, nil)
	require.NoError(t, c.Emit(ctx, done))

	c.InterruptStream("s2")

	<-c.Events() // plug
	got := <-c.Events()
	assert.Same(t, done, got)

	c.ResumeStream("s2")
	require.NoError(t, c.Emit(ctx, core.NewTextDeltaEvent("s2", "after resume")))
	delta := <-c.Events()
	assert.IsType(t, &core.TextDeltaEvent{}, delta)
}

func TestEmitFillsExecutionFromContext(t *testing.T) {
	c := New()
	defer c.Close()

	ec := core.NewExecutionContext("main")
	ctx := core.WithExecutionContext(context.Background(), ec)

	ev := core.NewErrorEvent("boom")
	require.NoError(t, c.Emit(ctx, ev))
	assert.Same(t, ec, ev.Meta().Execution)
}

func TestWaitTimeoutErrorIsDistinguishable(t *testing.T) {
	c := New()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForResponse[*core.PermissionResponseEvent](ctx, c, "r", time.Second)
	assert.False(t, errors.Is(err, ErrWaitTimeout))
	assert.ErrorIs(t, err, context.Canceled)
}

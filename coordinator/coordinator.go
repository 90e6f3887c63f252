package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

var (
	// ErrNilEvent is returned by Emit when passed a nil event.
	ErrNilEvent = errors.New("coordinator: nil event")

	// ErrClosed is returned when emitting to a closed coordinator.
	ErrClosed = errors.New("coordinator: closed")

	// ErrDuplicateRequest is returned when WaitForResponse is called with a
	// request id that already has a waiter.
	ErrDuplicateRequest = errors.New("coordinator: duplicate request id")

	// ErrWaitTimeout is returned when no correlated response arrives within
	// the wait timeout.
	ErrWaitTimeout = errors.New("coordinator: wait timed out")

	// ErrResponseTypeMismatch is returned when a response of an unexpected
	// variant arrives for a waited request id.
	ErrResponseTypeMismatch = errors.New("coordinator: response type mismatch")
)

// Options configures a Coordinator.
type Options struct {
	// Parent links this coordinator into a bubbling chain: every event this
	// coordinator accepts is also forwarded to the parent's delivery path,
	// and request/response correlation is shared with the root.
	Parent *Coordinator

	// BufferSize sets the delivery channel buffer. Larger buffers reduce
	// blocking but increase memory usage.
	BufferSize int

	// Logger receives delivery diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Coordinator distributes events in strict priority order and correlates
// request events with their responses. The four priority queues and the
// pending-request table are the only shared mutable state; all access goes
// through Emit, SendResponse and WaitForResponse.
type Coordinator struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queues      [4][]core.Event
	interrupted map[string]struct{}
	closed      bool

	seq     atomic.Uint64
	pending *pendingTable
	parent  *Coordinator
	depth   int
	out     chan core.Event
	logger  logging.Logger
}

// New creates a coordinator and starts its delivery loop. Consumers must
// drain Events() until it is closed; delivery applies backpressure once the
// buffer fills.
func New(optFns ...func(o *Options)) *Coordinator {
	opts := Options{BufferSize: 64, Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Coordinator{
		interrupted: map[string]struct{}{},
		parent:      opts.Parent,
		out:         make(chan core.Event, opts.BufferSize),
		logger:      opts.Logger,
	}
	c.cond = sync.NewCond(&c.mu)

	if opts.Parent != nil {
		// Linked coordinators share one correlation table so a root-level
		// handler can answer a request registered at any depth.
		c.pending = opts.Parent.pending
		c.depth = opts.Parent.depth + 1
	} else {
		c.pending = newPendingTable()
	}

	go c.deliver()

	return c
}

// NewChild creates a coordinator bubbling into c.
func (c *Coordinator) NewChild() *Coordinator {
	return New(func(o *Options) {
		o.Parent = c
		o.BufferSize = cap(c.out)
		o.Logger = c.logger
	})
}

// Depth returns this coordinator's position in the bubbling chain (0 for a
// root).
func (c *Coordinator) Depth() int { return c.depth }

// Emit assigns the next sequence number, fills in execution context from ctx
// if the event carries none, enqueues the event locally and forwards it to
// every ancestor coordinator. It never blocks on delivery and fails only for
// a nil or malformed event or a closed coordinator.
func (c *Coordinator) Emit(ctx context.Context, ev core.Event) error {
	if ev == nil {
		return ErrNilEvent
	}

	meta := ev.Meta()
	if !meta.Priority.Valid() {
		return fmt.Errorf("coordinator: invalid priority %d", meta.Priority)
	}

	if meta.SequenceNumber == 0 {
		meta.SequenceNumber = c.seq.Add(1)
	}

	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}

	if meta.Execution == nil {
		if ec, ok := core.ExecutionContextFrom(ctx); ok {
			meta.Execution = ec
		}
	}

	// A sub-agent event bubbling from depth N carries depth N so the root
	// consumer can tell nesting levels apart.
	if meta.Execution != nil && c.depth > 0 && meta.Execution.Depth == 0 {
		ec := *meta.Execution
		ec.Depth = c.depth
		meta.Execution = &ec
	}

	if err := c.accept(ev); err != nil {
		return err
	}

	for p := c.parent; p != nil; p = p.parent {
		if err := p.accept(ev); err != nil {
			return err
		}
	}

	return nil
}

// accept enqueues the event into the local priority queues without touching
// its metadata. Interruptible events of an interrupted stream are dropped.
func (c *Coordinator) accept(ev core.Event) error {
	meta := ev.Meta()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if meta.CanInterrupt && meta.StreamID != "" {
		if _, ok := c.interrupted[meta.StreamID]; ok {
			c.logger.Debug("coordinator.drop.interrupted", "stream_id", meta.StreamID)
			return nil
		}
	}

	c.queues[meta.Priority] = append(c.queues[meta.Priority], ev)
	c.cond.Signal()

	return nil
}

// next pops the most urgent queued event. Callers must hold c.mu.
func (c *Coordinator) next() core.Event {
	for pri := range c.queues {
		for len(c.queues[pri]) > 0 {
			ev := c.queues[pri][0]
			c.queues[pri] = c.queues[pri][1:]

			meta := ev.Meta()
			if meta.CanInterrupt && meta.StreamID != "" {
				if _, ok := c.interrupted[meta.StreamID]; ok {
					continue // dropped, stream was interrupted after enqueue
				}
			}

			return ev
		}
	}

	return nil
}

// deliver is the delivery loop: it fully drains one priority level before
// looking at the next, FIFO within a level. Strict priority means a flood of
// background telemetry can be starved by control traffic; that trade-off is
// accepted given how rare immediate/control events are.
func (c *Coordinator) deliver() {
	for {
		c.mu.Lock()
		ev := c.next()
		for ev == nil && !c.closed {
			c.cond.Wait()
			ev = c.next()
		}
		c.mu.Unlock()

		if ev == nil { // closed and drained
			close(c.out)
			return
		}

		c.out <- ev
	}
}

// Events returns the delivery stream. The channel is closed after Close once
// all queued events have been delivered.
func (c *Coordinator) Events() <-chan core.Event { return c.out }

// SendResponse completes the waiter registered under requestID with ev and
// removes the pending entry. A response addressed to an unknown or expired
// request id is a silent no-op: a timeout firing and a late response
// arriving race legitimately, and the late response must not fail.
func (c *Coordinator) SendResponse(requestID string, ev core.ResponseEvent) {
	if ev == nil {
		return
	}

	if !c.pending.resolve(requestID, ev) {
		c.logger.Debug("coordinator.response.unmatched", "request_id", requestID)
	}
}

// InterruptStream marks a stream as interrupted: queued and future events of
// that stream with CanInterrupt set are silently dropped. Events with
// CanInterrupt unset (completions, errors, cleanup) are always delivered.
func (c *Coordinator) InterruptStream(streamID string) {
	if streamID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.interrupted[streamID] = struct{}{}

	for pri := range c.queues {
		kept := c.queues[pri][:0]
		for _, ev := range c.queues[pri] {
			meta := ev.Meta()
			if meta.CanInterrupt && meta.StreamID == streamID {
				continue
			}
			kept = append(kept, ev)
		}
		c.queues[pri] = kept
	}
}

// ResumeStream clears an interruption mark, releasing per-stream state.
func (c *Coordinator) ResumeStream(streamID string) {
	c.mu.Lock()
	delete(c.interrupted, streamID)
	c.mu.Unlock()
}

// PendingRequests returns the number of in-flight WaitForResponse calls
// across the whole bubbling chain.
func (c *Coordinator) PendingRequests() int { return c.pending.size() }

// Close stops accepting events. Already queued events are still delivered,
// then the Events channel is closed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitForResponse suspends the calling goroutine until one of exactly four
// outcomes occurs for requestID:
//
//   - a correlated response of variant T arrives: it is returned;
//   - the timeout elapses: ErrWaitTimeout;
//   - ctx is cancelled: ctx.Err();
//   - a response of a different variant arrives: ErrResponseTypeMismatch.
//
// On timeout or cancellation the pending entry is removed, so a response
// arriving afterwards is silently dropped by SendResponse.
func WaitForResponse[T core.ResponseEvent](ctx context.Context, c *Coordinator, requestID string, timeout time.Duration) (T, error) {
	var zero T

	p, err := c.pending.register(requestID)
	if err != nil {
		return zero, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-p.done:
		resp, ok := ev.(T)
		if !ok {
			return zero, fmt.Errorf("%w: request %s got %T", ErrResponseTypeMismatch, requestID, ev)
		}
		return resp, nil

	case <-timer.C:
		c.pending.remove(requestID)
		return zero, fmt.Errorf("%w: request %s after %s", ErrWaitTimeout, requestID, timeout)

	case <-ctx.Done():
		c.pending.remove(requestID)
		return zero, ctx.Err()
	}
}

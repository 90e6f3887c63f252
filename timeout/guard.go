// Package timeout races a single call against a wall-clock deadline while
// keeping caller-initiated cancellation distinguishable from the deadline
// firing.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error is the distinguishable timeout failure kind: unlike a plain
// cancellation it names the function and the configured limit so retry and
// formatting layers can treat deadlines specially.
type Error struct {
	Function string
	Limit    time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("function %q timed out after %.2fs", e.Function, e.Limit.Seconds())
}

// Timeout reports true; it lets callers detect the failure kind through
// net.Error style interface checks.
func (e *Error) Timeout() bool { return true }

// Guard wraps calls with one wall-clock deadline.
type Guard struct {
	limit time.Duration
}

// NewGuard creates a guard for the given limit. A non-positive limit is a
// configuration error and is rejected here, not at call time.
func NewGuard(limit time.Duration) (*Guard, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("timeout: limit must be positive, got %s", limit)
	}

	return &Guard{limit: limit}, nil
}

// Limit returns the configured deadline duration.
func (g *Guard) Limit() time.Duration { return g.limit }

// Run executes fn with a context that is cancelled at the earlier of the
// caller's ctx and the guard's deadline, and returns:
//
//   - fn's result unmodified when it finishes first;
//   - *Error when the deadline fired;
//   - ctx.Err() when the caller's signal fired, never *Error, even if the
//     deadline elapsed around the same moment.
//
// When the call's duration lands exactly on the deadline either outcome may
// win; the boundary is deliberately non-deterministic. fn must honor its
// context: a call that ignores cancellation keeps its goroutine alive until
// it returns (the result is discarded into a buffered channel).
func (g *Guard) Run(ctx context.Context, function string, fn func(ctx context.Context) (any, error)) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, g.limit)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		v, err := fn(cctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.value, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cctx.Err() == context.DeadlineExceeded && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, &Error{Function: function, Limit: g.limit}
		}
		return nil, out.err

	case <-cctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Function: function, Limit: g.limit}
	}
}

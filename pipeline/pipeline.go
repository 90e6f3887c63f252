// Package pipeline composes the resilient call stack around every model and
// tool invocation: retry (outermost), timeout, error formatting (innermost),
// plus arbitrary user middleware and an optional concurrency limit. The
// fixed nesting means retry sees a whole timed-and-formatted attempt fail
// before deciding, and the formatter sees the rawest possible error.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/errfmt"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/timeout"
)

// Call is one logical invocation to run through the pipeline.
type Call struct {
	// Name identifies the function or model for events, timeouts and error
	// messages.
	Name string
	// Kind distinguishes model calls from tool calls in observability
	// events.
	Kind core.CallKind
	// Fn performs the call. It must honor ctx cancellation.
	Fn func(ctx context.Context) (any, error)
}

// Handler executes a call. Middleware wraps handlers.
type Handler func(ctx context.Context, call Call) (any, error)

// Middleware wraps the whole retried call. Unlike the infrastructure layers
// it runs in, middleware belongs to the agent-loop layer and may use
// coordinator.WaitForResponse; the retry/timeout/formatting layers never do.
type Middleware func(next Handler) Handler

// Options configures a Pipeline.
type Options struct {
	// Retry configures the retry policy. Defaults to retry.DefaultConfig.
	Retry retry.Config

	// Timeout bounds each individual attempt. Zero disables the guard;
	// negative values are rejected.
	Timeout time.Duration

	// ErrorMode selects sanitized or detailed externally visible errors.
	ErrorMode errfmt.Mode

	// MaxParallelCalls bounds how many calls execute concurrently. Zero
	// means unlimited. Acquisition is a cancellable suspension point.
	MaxParallelCalls int

	// Middleware wraps the retried call, first entry outermost.
	Middleware []Middleware

	// Logger receives per-call diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Pipeline runs calls through the fixed resilience stack and reports
// attempts, waits and outcomes to the coordinator's event stream.
type Pipeline struct {
	policy    *retry.Policy
	guard     *timeout.Guard // nil when no timeout configured
	formatter *errfmt.Formatter
	coord     *coordinator.Coordinator
	sem       chan struct{} // nil when unlimited
	handler   Handler
	logger    logging.Logger
}

// New creates a pipeline emitting observability events through coord.
func New(coord *coordinator.Coordinator, optFns ...func(o *Options)) (*Pipeline, error) {
	opts := Options{
		Retry:  retry.DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	p := &Pipeline{
		policy:    retry.NewPolicy(func(c *retry.Config) { *c = opts.Retry }),
		formatter: errfmt.NewFormatter(func(o *errfmt.Options) { o.Mode = opts.ErrorMode }),
		coord:     coord,
		logger:    opts.Logger,
	}

	if opts.Timeout != 0 {
		g, err := timeout.NewGuard(opts.Timeout)
		if err != nil {
			return nil, err
		}
		p.guard = g
	}

	if opts.MaxParallelCalls > 0 {
		p.sem = make(chan struct{}, opts.MaxParallelCalls)
	}

	h := p.retried
	for i := len(opts.Middleware) - 1; i >= 0; i-- {
		h = opts.Middleware[i](h)
	}
	p.handler = h

	return p, nil
}

// Execute runs one call through the composed stack. On exhaustion the last
// attempt's error propagates unchanged; no wrapping happens at the retry
// layer.
func (p *Pipeline) Execute(ctx context.Context, call Call) (any, error) {
	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return p.handler(ctx, call)
}

// retried is the outermost infrastructure layer.
func (p *Pipeline) retried(ctx context.Context, call Call) (any, error) {
	callID := uuid.NewString()
	ceiling := p.policy.Config().MaxRetries
	start := time.Now()

	p.emit(ctx, core.NewCallStartedEvent(callID, call.Name, call.Kind))

	var (
		attempt int
		delay   time.Duration
	)

	for {
		p.emit(ctx, core.NewRetryAttemptEvent(call.Name, attempt+1, ceiling+1, delay, "", ""))

		value, err := p.attempt(ctx, call)
		if err == nil {
			p.emit(ctx, core.NewCallFinishedEvent(callID, call.Name, call.Kind, time.Since(start), attempt+1, nil))
			p.logger.Debug("pipeline.call.completed", "function", call.Name, "attempts", attempt+1)
			return value, nil
		}

		var tErr *timeout.Error
		if errors.As(err, &tErr) {
			p.emit(ctx, core.NewCallTimedOutEvent(call.Name, tErr.Limit))
		}

		// Caller cancellation stops the call; retrying a cancelled context
		// cannot succeed.
		if ctx.Err() != nil {
			p.emit(ctx, core.NewCallFinishedEvent(callID, call.Name, call.Kind, time.Since(start), attempt+1, err))
			return nil, err
		}

		dec := p.policy.Decide(err, attempt)
		if !dec.Retry {
			ceiling = p.policy.Ceiling(err)
			p.emit(ctx, core.NewRetryExhaustedEvent(call.Name, attempt+1, ceiling+1, err.Error()))
			p.emit(ctx, core.NewCallFinishedEvent(callID, call.Name, call.Kind, time.Since(start), attempt+1, err))
			p.logger.Warn("pipeline.call.failed",
				"function", call.Name,
				"attempts", attempt+1,
				"category", dec.Category.String(),
				"error", err.Error(),
			)
			return nil, err
		}

		p.logger.Debug("pipeline.retry.wait",
			"function", call.Name,
			"attempt", attempt+1,
			"delay_ms", dec.Delay.Milliseconds(),
			"category", dec.Category.String(),
		)

		if err := sleep(ctx, dec.Delay); err != nil {
			return nil, err
		}

		attempt++
		delay = dec.Delay
	}
}

// attempt runs one timed, formatted invocation of the underlying call.
func (p *Pipeline) attempt(ctx context.Context, call Call) (any, error) {
	formatted := func(ctx context.Context) (any, error) {
		value, err := call.Fn(ctx)
		return value, p.formatter.Wrap(call.Name, err)
	}

	if p.guard == nil {
		return formatted(ctx)
	}

	return p.guard.Run(ctx, call.Name, formatted)
}

func (p *Pipeline) emit(ctx context.Context, ev core.Event) {
	if p.coord == nil {
		return
	}
	if err := p.coord.Emit(ctx, ev); err != nil {
		p.logger.Debug("pipeline.emit.dropped", "error", err.Error())
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/coordinator"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/pipeline"
	"github.com/hupe1980/agentloop/tool"
)

// FunctionResult is the outcome of one executed function call, correlated to
// the model's call id.
type FunctionResult struct {
	ID    string
	Name  string
	Value any
	Err   error
}

// ExecutorOptions configures the parallel function executor.
type ExecutorOptions struct {
	// MaxParallel bounds in-flight calls of one batch. 0 or less means no
	// explicit limit beyond the batch size.
	MaxParallel int

	// PreserveOrder buffers results and returns them in the original call
	// order instead of completion order.
	PreserveOrder bool

	// RequirePermission gates every call behind a PermissionRequestEvent
	// that an external handler must approve.
	RequirePermission bool

	// PermissionTimeout bounds the wait for a permission decision. Zero
	// defaults to 30s.
	PermissionTimeout time.Duration

	// Logger receives per-call diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor runs a batch of model-requested function calls, possibly in
// parallel, each through the call pipeline.
//
// Guarantees:
//   - exactly one FunctionResult per incoming call, in all outcomes;
//   - panics in tool code are recovered and surfaced as errors;
//   - cancellation stops launching new calls and fails the remainder.
type Executor struct {
	opts  ExecutorOptions
	pipe  *pipeline.Pipeline
	coord *coordinator.Coordinator

	mu       sync.Mutex
	approved map[string]struct{} // functions granted ScopeAlways
}

// NewExecutor creates an executor running calls through pipe and emitting
// permission traffic on coord.
func NewExecutor(coord *coordinator.Coordinator, pipe *pipeline.Pipeline, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		PermissionTimeout: 30 * time.Second,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{
		opts:     opts,
		pipe:     pipe,
		coord:    coord,
		approved: map[string]struct{}{},
	}
}

// ExecuteBatch runs every call against registry and returns one result per
// call. With PreserveOrder set, results follow the input order; otherwise
// they arrive in completion order.
func (e *Executor) ExecuteBatch(ctx context.Context, registry map[string]tool.Tool, calls []model.FunctionCall) []FunctionResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []FunctionResult{e.executeOne(ctx, registry, calls[0])}
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	ordered := make([]FunctionResult, n)
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []FunctionResult
	)

	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		if ctx.Err() != nil {
			res := FunctionResult{ID: calls[i].ID, Name: calls[i].Name, Err: ctx.Err()}
			if e.opts.PreserveOrder {
				ordered[i] = res
			} else {
				results = append(results, res)
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc model.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			res := e.executeOne(ctx, registry, fc)

			mu.Lock()
			if e.opts.PreserveOrder {
				ordered[idx] = res
			} else {
				results = append(results, res)
			}
			mu.Unlock()
		}(i, calls[i])
	}

	wg.Wait()

	e.opts.Logger.Debug("agent.functions.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.opts.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	if e.opts.PreserveOrder {
		return ordered
	}
	return results
}

// executeOne gates, pipelines and runs a single call.
func (e *Executor) executeOne(ctx context.Context, registry map[string]tool.Tool, fc model.FunctionCall) FunctionResult {
	logger := e.opts.Logger

	if e.opts.RequirePermission {
		if err := e.requestPermission(ctx, fc); err != nil {
			logger.Warn("agent.function.denied", "function", fc.Name, "error", err.Error())
			return FunctionResult{ID: fc.ID, Name: fc.Name, Err: err}
		}
	}

	logger.Debug("agent.function.start", "function", fc.Name, "function_call_id", fc.ID)

	start := time.Now()
	value, err := e.pipe.Execute(ctx, pipeline.Call{
		Name: fc.Name,
		Kind: core.CallKindFunction,
		Fn: func(ctx context.Context) (value any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &panicErr{val: r, stack: debug.Stack()}
					logger.Error("agent.function.panic", "function", fc.Name, "recover", fmt.Sprint(r))
				}
			}()
			return callTool(ctx, e.coord, registry, fc, logger)
		},
	})

	logger.Info("agent.function.executed",
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return FunctionResult{ID: fc.ID, Name: fc.Name, Value: value, Err: err}
}

// requestPermission suspends on a permission prompt unless the function was
// previously granted ScopeAlways.
func (e *Executor) requestPermission(ctx context.Context, fc model.FunctionCall) error {
	e.mu.Lock()
	_, ok := e.approved[fc.Name]
	e.mu.Unlock()
	if ok {
		return nil
	}

	req := core.NewPermissionRequestEvent(fc.Name, fmt.Sprintf("%v", fc.Arguments))
	if err := e.coord.Emit(ctx, req); err != nil {
		return err
	}

	resp, err := coordinator.WaitForResponse[*core.PermissionResponseEvent](ctx, e.coord, req.RequestID(), e.opts.PermissionTimeout)
	if err != nil {
		return fmt.Errorf("permission for %q: %w", fc.Name, err)
	}

	if !resp.Approved {
		return tool.NewToolError(fc.Name, fmt.Sprintf("permission denied: %s", resp.Reason), "PERMISSION_DENIED")
	}

	if resp.Scope == core.ScopeAlways {
		e.mu.Lock()
		e.approved[fc.Name] = struct{}{}
		e.mu.Unlock()
	}

	return nil
}

// callTool centralizes tool lookup and execution.
func callTool(ctx context.Context, coord *coordinator.Coordinator, registry map[string]tool.Tool, fc model.FunctionCall, logger logging.Logger) (any, error) {
	impl, ok := registry[fc.Name]
	if !ok {
		return nil, tool.NewToolError(fc.Name, "tool not found", "UNKNOWN_TOOL")
	}

	args := fc.Arguments
	if args == nil {
		args = map[string]any{}
	}

	return impl.Call(tool.NewContext(ctx, coord, fc.ID, logger), args)
}

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

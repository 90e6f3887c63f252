package tool

import "fmt"

// FunctionTool is a generic adapter that exposes a plain Go function as a
// Tool.
//
// Error semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
//
// A FunctionTool has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and
// function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name returns the unique tool name used in function call declarations and
// routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to
// models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call invokes the underlying function. Failures are wrapped (or passed
// through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Call(toolCtx *Context, args map[string]any) (any, error) {
	logger := toolCtx.Logger()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if te, ok := err.(*ToolError); ok {
			toolErr = te
		} else {
			toolErr = &ToolError{
				Tool:    t.name,
				Message: err.Error(),
				Code:    "EXECUTION_ERROR",
			}
		}

		logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

		return nil, toolErr
	}

	logger.Debug("tool.call.success", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	return result, nil
}

// Describe returns a one-line summary for logs and permission prompts.
func (t *FunctionTool) Describe() string {
	return fmt.Sprintf("%s: %s", t.name, t.description)
}

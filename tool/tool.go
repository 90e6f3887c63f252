// Package tool defines the callable capabilities an agent loop can invoke.
// Every tool call runs through the resilient call pipeline, so tools get
// retry, timeout and error formatting for free; the package itself only
// defines the contract and a plain-function adapter.
package tool

import "fmt"

// Tool is a structured capability an agent can invoke.
//
// Implementations should be safe for concurrent use: the executor runs tool
// calls of one batch in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case
	// recommended).
	Name() string

	// Description returns a human-readable description of what the tool
	// does, exposed to models for function calling.
	Description() string

	// Parameters returns a JSON-Schema-like map describing the accepted
	// arguments.
	Parameters() map[string]any

	// Call executes the tool. Implementations must honor ctx cancellation;
	// the pipeline's timeout guard cancels ctx when the deadline fires.
	Call(ctx *Context, args map[string]any) (any, error)
}

// ToolError represents errors that occur during tool execution. The code
// categorizes the failure so the loop can decide between retrying, reporting
// to the model and aborting.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

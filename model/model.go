// Package model defines the provider-neutral boundary the agent loop calls
// models through. The loop never talks to an SDK directly; it submits a
// Request through the call pipeline and interprets the Response's function
// calls. Provider bindings implement Model and translate to their SDK's
// types.
package model

import "context"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of conversation history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text,omitempty"`

	// FunctionCalls carries the calls an assistant turn requested.
	FunctionCalls []FunctionCall `json:"function_calls,omitempty"`

	// FunctionResponse carries a tool turn's result, correlated by CallID.
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// FunctionCall is a model-requested tool invocation.
type FunctionCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// FunctionResponse is the result of one executed function call.
type FunctionResponse struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ToolDefinition declares a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is one generation request.
type Request struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Response is the model's reply to a Request.
type Response struct {
	Message Message `json:"message"`

	// Done reports that the model considers the task finished (no pending
	// function calls and a terminal stop reason).
	Done bool `json:"done"`
}

// Info describes a bound model for logs and diagnostics.
type Info struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// Model is the generation boundary. Implementations must honor ctx
// cancellation: the pipeline's timeout guard cancels ctx when an attempt's
// deadline fires.
type Model interface {
	// Generate produces the next assistant turn.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns provider and model identity.
	Info() Info
}

// Package testutil provides shared helpers for exercising the coordinator,
// pipeline and agent loop in tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// ResponseBuilder is a fluent helper for constructing model responses in
// tests. Chain only the parts you need.
//
//	resp := NewResponseBuilder().Text("done").Done().Build()
type ResponseBuilder struct {
	text  string
	calls []model.FunctionCall
	done  bool
}

// NewResponseBuilder creates an empty builder.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{} }

// Text sets the assistant text (chainable).
func (b *ResponseBuilder) Text(t string) *ResponseBuilder { b.text = t; return b }

// FunctionCall adds a requested function call (chainable).
func (b *ResponseBuilder) FunctionCall(id, name string, args map[string]any) *ResponseBuilder {
	b.calls = append(b.calls, model.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// Done marks the response terminal (chainable).
func (b *ResponseBuilder) Done() *ResponseBuilder { b.done = true; return b }

// Build constructs the model.Response value.
func (b *ResponseBuilder) Build() *model.Response {
	return &model.Response{
		Message: model.Message{
			Role:          model.RoleAssistant,
			Text:          b.text,
			FunctionCalls: b.calls,
		},
		Done: b.done,
	}
}

// ScriptStep is one scripted model turn: either a response or an error.
type ScriptStep struct {
	Resp *model.Response
	Err  error
}

// ScriptedModel replays a fixed sequence of turns and records every request
// it received. Safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []ScriptStep
	pos      int
	Requests []model.Request
}

// NewScriptedModel creates a model that replays steps in order.
func NewScriptedModel(steps ...ScriptStep) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(_ context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.pos >= len(m.steps) {
		return nil, errors.New("scripted model: no steps left")
	}

	step := m.steps[m.pos]
	m.pos++

	if step.Err != nil {
		return nil, step.Err
	}
	return step.Resp, nil
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Provider: "test", Name: "scripted"}
}

// Calls returns how many turns were consumed.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// FlakyFn returns a call function that fails with err for the first
// failures invocations, then succeeds with value. The returned counter
// reports how many times the function ran.
func FlakyFn(failures int, err error, value any) (func(ctx context.Context) (any, error), *atomic.Int32) {
	var count atomic.Int32

	fn := func(context.Context) (any, error) {
		if int(count.Add(1)) <= failures {
			return nil, err
		}
		return value, nil
	}

	return fn, &count
}

// CollectEvents drains ch until want events of type T arrived or the timeout
// elapsed, returning everything of type T seen so far.
func CollectEvents[T core.Event](ch <-chan core.Event, want int, timeout time.Duration) ([]T, error) {
	deadline := time.After(timeout)
	var out []T

	for len(out) < want {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out, fmt.Errorf("stream closed after %d of %d events", len(out), want)
			}
			if t, ok := ev.(T); ok {
				out = append(out, t)
			}
		case <-deadline:
			return out, fmt.Errorf("timed out after %d of %d events", len(out), want)
		}
	}

	return out, nil
}

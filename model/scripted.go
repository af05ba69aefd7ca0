package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

// ErrScriptExhausted is returned by ScriptedModel once every step was consumed
// and no fallback is configured.
var ErrScriptExhausted = errors.New("scripted model: no responses left")

// Step is one scripted outcome: either a response or an error.
type Step struct {
	Response *Response
	Err      error
}

// Text returns a step answering with plain text.
func Text(text string) Step {
	return Step{Response: &Response{
		Content:      core.NewTextContent("assistant", text),
		FinishReason: "stop",
	}}
}

// Calls returns a step requesting the given function calls.
func Calls(calls ...core.FunctionCall) Step {
	parts := make([]core.Part, len(calls))
	for i, c := range calls {
		parts[i] = core.FunctionCallPart{FunctionCall: c}
	}

	return Step{Response: &Response{
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: "tool_calls",
	}}
}

// Fail returns a step failing with err.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedOptions configure a ScriptedModel.
type ScriptedOptions struct {
	Info Info
	// Fallback answers requests once the script is exhausted.
	Fallback func(req Request) (*Response, error)
}

// ScriptedModel is a deterministic Model that replays a fixed sequence of
// steps and records every request it receives. Safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
	opts     ScriptedOptions
}

// NewScriptedModel creates a model that replays steps in order.
func NewScriptedModel(steps []Step, optFns ...func(o *ScriptedOptions)) *ScriptedModel {
	opts := ScriptedOptions{
		Info: Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ScriptedModel{steps: append([]Step(nil), steps...), opts: opts}
}

// Push appends steps to the script.
func (m *ScriptedModel) Push(steps ...Step) {
	m.mu.Lock()
	m.steps = append(m.steps, steps...)
	m.mu.Unlock()
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)

	if len(m.steps) == 0 {
		fallback := m.opts.Fallback
		m.mu.Unlock()

		if fallback == nil {
			return nil, ErrScriptExhausted
		}

		return fallback(req)
	}

	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	resp := *step.Response

	return &resp, nil
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Remaining returns the number of unconsumed steps.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.steps)
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.opts.Info }

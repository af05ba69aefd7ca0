package model

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
)

var _ Model = (*ScriptedModel)(nil)

func TestScriptedModel_ReplaysStepsInOrder(t *testing.T) {
	boom := errors.New("overloaded")
	m := NewScriptedModel([]Step{
		Calls(core.FunctionCall{ID: "c1", Name: "lookup", Arguments: `{"q":"x"}`}),
		Fail(boom),
		Text("done"),
	})

	ctx := context.Background()
	req := Request{Contents: []core.Content{core.NewTextContent("user", "hi")}}

	resp, err := m.Generate(ctx, req)
	require.NoError(t, err)
	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lookup", calls[0].Name)
	assert.Equal(t, "tool_calls", resp.FinishReason)

	_, err = m.Generate(ctx, req)
	assert.ErrorIs(t, err, boom)

	resp, err = m.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content.Text())

	_, err = m.Generate(ctx, req)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Len(t, m.Requests(), 4)
	assert.Equal(t, 0, m.Remaining())
}

func TestScriptedModel_FallbackAndCancellation(t *testing.T) {
	m := NewScriptedModel(nil, func(o *ScriptedOptions) {
		o.Info.Reasoning = true
		o.Fallback = func(req Request) (*Response, error) {
			last := req.Contents[len(req.Contents)-1]
			s := Text("echo: " + last.Text())
			return s.Response, nil
		}
	})

	assert.True(t, m.Info().Reasoning)

	resp, err := m.Generate(context.Background(), Request{Contents: []core.Content{core.NewTextContent("user", "ping")}})
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", resp.Content.Text())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptedModel_ResponsesAreCopies(t *testing.T) {
	m := NewScriptedModel([]Step{Text("a")})
	resp, err := m.Generate(context.Background(), Request{})
	require.NoError(t, err)
	resp.FinishReason = "changed"

	m.Push(Text("b"))
	resp, err = m.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestRegistry_ResolveCachesPerConfig(t *testing.T) {
	var built atomic.Int32
	r := NewRegistry()
	r.Register("OpenAI", func(cfg core.ModelConfig) (Model, error) {
		built.Add(1)
		return NewScriptedModel(nil, func(o *ScriptedOptions) { o.Info.Name = cfg.Name }), nil
	})

	cfg := core.ModelConfig{Provider: " openai ", Name: "gpt"}
	m1, err := r.Resolve(cfg)
	require.NoError(t, err)
	m2, err := r.Resolve(cfg)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.EqualValues(t, 1, built.Load())
	assert.Equal(t, "gpt", m1.Info().Name)

	_, err = r.Resolve(core.ModelConfig{Provider: "openai", Name: "other"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, built.Load())
}

func TestRegistry_UnknownProviderIsConfigError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(core.ModelConfig{Provider: "acme"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.True(t, core.IsConfigError(err))
}

func TestRegistry_FactoryErrorAndUse(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", func(core.ModelConfig) (Model, error) { return nil, errors.New("no key") })
	_, err := r.Resolve(core.ModelConfig{Provider: "broken"})
	assert.ErrorContains(t, err, "no key")

	fixed := NewScriptedModel(nil)
	r.Use("broken", fixed)
	m, err := r.Resolve(core.ModelConfig{Provider: "broken"})
	require.NoError(t, err)
	assert.Same(t, fixed, m)
	assert.ElementsMatch(t, []string{"broken"}, r.Providers())
}

func TestNewFunctionDefinition(t *testing.T) {
	d := NewFunctionDefinition("f", "desc", map[string]any{"type": "object"})
	assert.Equal(t, "function", d.Type)
	assert.Equal(t, "f", d.Function.Name)
}

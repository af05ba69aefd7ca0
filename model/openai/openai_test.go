package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

var (
	_ model.Model    = (*Model)(nil)
	_ model.Embedder = (*Embedder)(nil)
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages([]core.Content{
		core.NewTextContent("system", "be brief"),
		core.NewTextContent("user", "weather?"),
		{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "weather", Arguments: `{}`}}}},
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "weather", Response: "sunny"}}}},
		core.NewTextContent("assistant", "It is sunny."),
	})

	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "weather", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildParams_ReasoningDropsTemperature(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.Reasoning = true
	})
	params := m.buildParams(model.Request{Tools: []model.ToolDefinition{
		model.NewFunctionDefinition("f", "d", map[string]any{"type": "object"}),
	}}, nil)

	assert.False(t, params.Temperature.Valid())
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "f", params.Tools[0].Function.Name)
	assert.True(t, m.Info().Reasoning)
}

func TestFactoryAppliesModelConfig(t *testing.T) {
	f := NewFactory(func(o *Options) { o.APIKey = "test" })
	m, err := f(core.ModelConfig{Provider: "openai", Name: "o3-mini", Reasoning: true, MaxRetries: 5})
	require.NoError(t, err)

	om := m.(*Model)
	assert.Equal(t, "o3-mini", om.Info().Name)
	assert.True(t, om.Info().Reasoning)
	assert.Equal(t, 5, om.opts.MaxRetries)
}

package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessages_ToolResultsAreUserTurns(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent("system", "rules"),
		core.NewTextContent("user", "look it up"),
		{Role: "assistant", Parts: []core.Part{
			core.TextPart{Text: "checking"},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "t1", Name: "lookup", Arguments: `{"q":"x"}`}},
		}},
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "t1", Name: "lookup", Response: "42"}}}},
	}

	msgs := buildMessages(contents)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)

	system := systemBlocks(contents)
	require.Len(t, system, 1)
	assert.Equal(t, "rules", system[0].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{
		model.NewFunctionDefinition("lookup", "find things", map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []any{"q", 3},
		}),
	})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "lookup", tools[0].OfTool.Name)
	assert.Equal(t, []string{"q"}, tools[0].OfTool.InputSchema.Required)
}

func TestRequiredNames(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredNames([]string{"a"}))
	assert.Nil(t, requiredNames(nil))
}

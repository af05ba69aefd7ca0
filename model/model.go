package model

import (
	"context"

	"github.com/hupe1980/teammesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewFunctionDefinition builds a "function" ToolDefinition.
func NewFunctionDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Request captures the normalized model input produced by the turn executor.
// Contents are ordered; a leading "system" content carries the system prompt.
type Request struct {
	Contents []core.Content  `json:"contents"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final completion of one model step.
type Response struct {
	ID           string       `json:"id"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
	// Reasoning models reject system messages; the executor folds the system
	// prompt into the user message instead.
	Reasoning bool `json:"reasoning"`
}

// Model is the minimal interface required by the turn executor.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder turns texts into dense vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

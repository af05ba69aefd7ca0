// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	// MaxRetries is the SDK's own retry count; overloaded (529) responses are
	// retried here before the executor's backoff sees them.
	MaxRetries int
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxRetries:  2,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &Model{client: anthropic.NewClient(clientOpts...), opts: opts}
}

// NewFactory returns a model.Factory that applies an agent's ModelConfig on
// top of base.
func NewFactory(base ...func(o *Options)) model.Factory {
	return func(cfg core.ModelConfig) (model.Model, error) {
		optFns := append(append([]func(o *Options){}, base...), func(o *Options) {
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxRetries > 0 {
				o.MaxRetries = cfg.MaxRetries
			}
		})

		return NewModel(optFns...), nil
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Contents),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if system := systemBlocks(req.Contents); len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var parts []core.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if b, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(b)
				}
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			}})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// buildMessages converts contents to Anthropic messages. System contents are
// sent separately; tool results travel as user messages.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, c := range contents {
		switch c.Role {
		case "system":
			continue
		case "assistant":
			if blocks := assistantBlocks(c.Parts); len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			var blocks []anthropic.ContentBlockParamUnion
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					blocks = append(blocks, anthropic.NewToolResultBlock(fr.FunctionResponse.ID, fr.FunctionResponse.Response, false))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}

	return messages
}

func systemBlocks(contents []core.Content) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	for _, c := range contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return blocks
}

func assistantBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			var input any = map[string]any{}
			if part.FunctionCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
					input = map[string]any{}
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
		}
	}

	return blocks
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}

		if params := t.Function.Parameters; params != nil {
			if props, ok := params["properties"]; ok {
				schema.Properties = props
			}
			schema.Required = requiredNames(params["required"])
		}

		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if out[i].OfTool != nil && t.Function.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Function.Description)
		}
	}

	return out
}

func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

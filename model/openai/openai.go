// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API with function calling. It also serves any
// OpenAI-compatible endpoint through Options.BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	// MaxRetries is the SDK's own retry count for transient failures.
	MaxRetries int
	// Reasoning marks models that reject system messages and temperature.
	Reasoning bool
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		MaxRetries:          2,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: openai.NewClient(clientOptions(opts)...), opts: opts}
}

// NewFactory returns a model.Factory that applies an agent's ModelConfig on
// top of base.
func NewFactory(base ...func(o *Options)) model.Factory {
	return func(cfg core.ModelConfig) (model.Model, error) {
		optFns := append(append([]func(o *Options){}, base...), func(o *Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxRetries > 0 {
				o.MaxRetries = cfg.MaxRetries
			}
			o.Reasoning = o.Reasoning || cfg.Reasoning
		})

		return NewModel(optFns...), nil
	}
}

func clientOptions(opts Options) []option.RequestOption {
	reqOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return reqOpts
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req, buildMessages(req.Contents))

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices returned")
	}

	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	return &model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildMessages converts normalized contents into chat messages. Tool
// results follow the assistant message that requested them.
func buildMessages(contents []core.Content) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	for _, c := range contents {
		text := c.Text()

		switch c.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(text))
		case "assistant":
			toolCalls := extractToolCalls(c)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text != "" {
				msg.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case "tool":
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					messages = append(messages, openai.ToolMessage(fr.FunctionResponse.Response, fr.FunctionResponse.ID))
				}
			}
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}

	return messages
}

func extractToolCalls(c core.Content) []openai.ChatCompletionMessageToolCallParam {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, fc := range c.FunctionCalls() {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}
	return toolCalls
}

func (m *Model) buildParams(req model.Request, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if !m.opts.Reasoning {
		params.Temperature = openai.Float(m.opts.Temperature)
	}

	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools

	return params
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
		Reasoning:     m.opts.Reasoning,
	}
}

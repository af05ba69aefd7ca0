// Package gemini provides a model.Model backed by Google's Gemini API
// (google.golang.org/genai), either through the Gemini developer API or
// Vertex AI.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

// Options configure the Gemini adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
	BaseURL         string
	// Project and Location select the Vertex AI backend when both are set.
	Project  string
	Location string
}

// Model wraps genai.Models behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a Gemini model.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:           "gemini-2.5-flash",
		Temperature:     0.7,
		MaxOutputTokens: 8192,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.Project != "" && opts.Location != "" {
		cfg = &genai.ClientConfig{
			Project:  opts.Project,
			Location: opts.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
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
				o.Temperature = float32(cfg.Temperature)
			}
		})

		return NewModel(context.Background(), optFns...)
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	temp := m.opts.Temperature

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	var system string
	for _, c := range req.Contents {
		if c.Role == "system" {
			system += c.Text()
		}
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, buildContents(req.Contents), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: no candidates returned")
	}

	cand := resp.Candidates[0]

	var parts []core.Part
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args, _ := json.Marshal(p.FunctionCall.Args)
			id := p.FunctionCall.ID
			if id == "" {
				id = core.NewID()
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        id,
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			}})
		case p.Text != "" && !p.Thought:
			parts = append(parts, core.TextPart{Text: p.Text})
		}
	}

	out := &model.Response{
		ID:           resp.ResponseID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: string(cand.FinishReason),
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return out, nil
}

// buildContents maps contents to genai roles. Tool results are user turns
// carrying function responses.
func buildContents(contents []core.Content) []*genai.Content {
	var out []*genai.Content

	for _, c := range contents {
		switch c.Role {
		case "system":
			continue
		case "assistant":
			var parts []*genai.Part
			if text := c.Text(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			for _, fc := range c.FunctionCalls() {
				args := map[string]any{}
				if fc.Arguments != "" {
					_ = json.Unmarshal([]byte(fc.Arguments), &args)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: fc.ID, Name: fc.Name, Args: args}})
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case "tool":
			var parts []*genai.Part
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
						ID:       fr.FunctionResponse.ID,
						Name:     fr.FunctionResponse.Name,
						Response: map[string]any{"output": fr.FunctionResponse.Response},
					}})
				}
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
			}
		default:
			if text := c.Text(); text != "" {
				out = append(out, genai.NewContentFromText(text, genai.RoleUser))
			}
		}
	}

	return out
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}

package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/teammesh/core"
)

// WebSearcher answers a research question with live web results.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// PerplexityOptions configure PerplexitySearcher.
type PerplexityOptions struct {
	BaseURL      string
	Model        string
	MaxRetries   int
	SystemPrompt string
}

// PerplexitySearcher queries an OpenAI-compatible chat completions endpoint
// that performs online search, such as Perplexity's sonar models.
type PerplexitySearcher struct {
	client openai.Client
	opts   PerplexityOptions
}

// NewPerplexitySearcher creates a searcher authenticated with apiKey.
func NewPerplexitySearcher(apiKey string, optFns ...func(o *PerplexityOptions)) *PerplexitySearcher {
	opts := PerplexityOptions{
		BaseURL:      "https://api.perplexity.ai",
		Model:        "sonar",
		MaxRetries:   2,
		SystemPrompt: "Answer precisely and concisely. Cite your sources as URLs.",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithMaxRetries(opts.MaxRetries),
	)

	return &PerplexitySearcher{client: client, opts: opts}
}

// Search implements WebSearcher.
func (p *PerplexitySearcher) Search(ctx context.Context, query string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.opts.SystemPrompt),
			openai.UserMessage(query),
		},
	})
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("web search: empty response")
	}

	return resp.Choices[0].Message.Content, nil
}

// NewWebSearchTool returns the web_search tool backed by searcher.
func NewWebSearchTool(searcher WebSearcher) Tool {
	const name = "web_search"

	return NewFunctionTool(
		name,
		"Research a question on the live web and return a sourced answer.",
		objectSchema(map[string]any{
			"query": prop("string", "The research question"),
		}, "query"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			if searcher == nil {
				return nil, NewToolError(name, "web search is not configured", CodeNotConfigured)
			}

			query := stringArg(args, "query")
			if query == "" {
				return nil, NewToolError(name, "query must not be empty", CodeValidation)
			}

			return searcher.Search(tc.Context(), query)
		},
	)
}

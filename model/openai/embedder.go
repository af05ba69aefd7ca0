package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// EmbedderOptions configure Embedder.
type EmbedderOptions struct {
	Model      string
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// Embedder implements model.Embedder with the OpenAI embeddings endpoint.
type Embedder struct {
	client openai.Client
	model  string
}

// NewEmbedder creates an embedder; the default model is text-embedding-3-small.
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *Embedder {
	opts := EmbedderOptions{
		Model:      openai.EmbeddingModelTextEmbedding3Small,
		MaxRetries: 2,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := openai.NewClient(clientOptions(Options{
		APIKey:     opts.APIKey,
		BaseURL:    opts.BaseURL,
		MaxRetries: opts.MaxRetries,
	})...)

	return &Embedder{client: client, model: opts.Model}
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}

	return out, nil
}

package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/teammesh/core"
)

// Snippets are retrieved memory and knowledge-base passages.
type Snippets struct {
	Memory    []string
	Knowledge []string
}

// RetrieverOptions configure a Retriever.
type RetrieverOptions struct {
	MemoryTopK    int
	KnowledgeTopK int
	// MinScore drops hits scoring below it.
	MinScore float64
}

// Retriever gathers diary memory and knowledge-base snippets for a prompt.
type Retriever struct {
	searcher core.Searcher
	opts     RetrieverOptions
}

// NewRetriever creates a retriever. A nil searcher retrieves nothing.
func NewRetriever(searcher core.Searcher, optFns ...func(o *RetrieverOptions)) *Retriever {
	opts := RetrieverOptions{
		MemoryTopK:    3,
		KnowledgeTopK: 3,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Retriever{searcher: searcher, opts: opts}
}

// Retrieve looks up memory in the agent's diary namespace and, when the agent
// has a knowledge base, its knowledge namespace. Both lookups run concurrently.
func (r *Retriever) Retrieve(ctx context.Context, userID, teamName string, agent *core.Agent, query string) (Snippets, error) {
	var out Snippets

	if r == nil || r.searcher == nil || agent == nil || strings.TrimSpace(query) == "" {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := r.searcher.Search(gctx, query, core.DiaryNamespace(userID, agent.Name, teamName), nil, r.opts.MemoryTopK)
		if err != nil {
			return fmt.Errorf("memory search: %w", err)
		}
		out.Memory = r.texts(hits)
		return nil
	})

	if agent.HasKnowledgeBase {
		g.Go(func() error {
			hits, err := r.searcher.Search(gctx, query, core.KnowledgeNamespace(userID, agent.Name), nil, r.opts.KnowledgeTopK)
			if err != nil {
				return fmt.Errorf("knowledge search: %w", err)
			}
			out.Knowledge = r.texts(hits)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snippets{}, err
	}

	return out, nil
}

func (r *Retriever) texts(hits []core.SearchResult) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.opts.MinScore {
			continue
		}
		if c := strings.TrimSpace(h.Content); c != "" {
			out = append(out, c)
		}
	}
	return out
}

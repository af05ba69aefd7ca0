package tool

import (
	"github.com/hupe1980/teammesh/core"
)

// KnowledgeHit is one knowledge base search result.
type KnowledgeHit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// NewKnowledgeBaseTool returns the tool that searches the calling agent's
// knowledge base namespace.
func NewKnowledgeBaseTool() Tool {
	const name = "search_knowledge_base"

	return NewFunctionTool(
		name,
		"Search your knowledge base for documents relevant to a query.",
		objectSchema(map[string]any{
			"query": prop("string", "What to look for"),
			"top_k": prop("integer", "Number of results (default 5)"),
		}, "query"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			query := stringArg(args, "query")
			if query == "" {
				return nil, NewToolError(name, "query must not be empty", CodeValidation)
			}

			ns := core.KnowledgeNamespace(tc.UserID(), tc.AgentName())

			results, err := tc.Search(query, ns, nil, intArg(args, "top_k", 5))
			if err != nil {
				return nil, err
			}

			hits := make([]KnowledgeHit, 0, len(results))
			for _, r := range results {
				h := KnowledgeHit{Content: r.Content, Score: r.Score}
				if src, ok := r.Metadata["source"].(string); ok {
					h.Source = src
				}
				hits = append(hits, h)
			}

			return hits, nil
		},
	)
}

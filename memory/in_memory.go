package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

// InMemoryIndex is a process-local core.Searcher and core.Indexer.
//
// Documents are grouped by namespace. Search tokenizes the query and scores
// each document by the fraction of distinct query terms it contains
// (case-insensitive), dropping documents that match none. An empty query
// matches everything with score 1. Suitable for tests and small deployments;
// use the pgvector index for semantic recall.
type InMemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]map[string]core.SearchResult // namespace -> id -> doc
	seq  int
}

// NewInMemoryIndex creates an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{docs: make(map[string]map[string]core.SearchResult)}
}

// Index implements core.Indexer. A document without id gets a sequential one;
// indexing an existing id replaces it.
func (m *InMemoryIndex) Index(_ context.Context, namespace string, doc core.SearchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[namespace]; !ok {
		m.docs[namespace] = make(map[string]core.SearchResult)
	}
	if doc.ID == "" {
		m.seq++
		doc.ID = fmt.Sprintf("mem_%d", m.seq)
	}
	doc.Metadata = copyMeta(doc.Metadata)
	m.docs[namespace][doc.ID] = doc

	return nil
}

// Search implements core.Searcher. filter entries must equal the document
// metadata values.
func (m *InMemoryIndex) Search(_ context.Context, query, namespace string, filter map[string]any, topK int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := tokenize(query)

	results := make([]core.SearchResult, 0)
	for _, d := range m.docs[namespace] {
		if !matchesFilter(d.Metadata, filter) {
			continue
		}

		score := 1.0
		if len(terms) > 0 {
			score = termScore(d.Content, terms)
			if score == 0 {
				continue
			}
		}

		r := d
		r.Score = score
		r.Metadata = copyMeta(d.Metadata)
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Delete removes a document from a namespace.
func (m *InMemoryIndex) Delete(_ context.Context, namespace, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.docs[namespace]
	if !ok {
		return fmt.Errorf("document %q: %w", id, core.ErrNotFound)
	}
	if _, ok := ns[id]; !ok {
		return fmt.Errorf("document %q: %w", id, core.ErrNotFound)
	}
	delete(ns, id)

	return nil
}

func tokenize(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127)
	}) {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func termScore(content string, terms []string) float64 {
	lc := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lc, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func matchesFilter(meta map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(meta[k], v) {
			return false
		}
	}
	return true
}

func copyMeta(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

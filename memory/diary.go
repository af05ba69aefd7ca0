package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// Diary records what an agent did for a user in a team. Entries are stored
// through core.DataStore under core.DiaryNamespace and, when an indexer is
// configured, made searchable under the same namespace.
type Diary struct {
	store   core.DataStore
	indexer core.Indexer
	now     func() time.Time
}

// NewDiary creates a diary. indexer may be nil.
func NewDiary(store core.DataStore, indexer core.Indexer) *Diary {
	return &Diary{store: store, indexer: indexer, now: time.Now}
}

// Write appends an entry and returns its id. Blank entries are ignored.
func (d *Diary) Write(ctx context.Context, userID, agentName, teamName, entry string) (string, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", nil
	}

	ns := core.DiaryNamespace(userID, agentName, teamName)
	at := d.now()

	id, err := d.store.StoreData(ctx, core.Record{
		Key:       ns,
		Content:   entry,
		Meta:      core.Meta{Meta1: agentName, Meta2: teamName},
		CreatedAt: at,
	}, true)
	if err != nil {
		return "", fmt.Errorf("write diary: %w", err)
	}

	if d.indexer != nil {
		if err := d.indexer.Index(ctx, ns, core.SearchResult{
			ID:      id,
			Content: entry,
			Metadata: map[string]any{
				"agent":     agentName,
				"team":      teamName,
				"createdAt": at.UTC().Format(time.RFC3339),
			},
		}); err != nil {
			return id, fmt.Errorf("index diary entry: %w", err)
		}
	}

	return id, nil
}

// Recent returns up to n entries, newest first.
func (d *Diary) Recent(ctx context.Context, userID, agentName, teamName string, n int) ([]core.Record, error) {
	return d.store.GetDataMany(ctx, core.DiaryNamespace(userID, agentName, teamName), core.Meta{}, n)
}

// Summarize condenses a turn into a single diary line.
func Summarize(message, response string, maxChars int) string {
	line := fmt.Sprintf("Asked: %s | Answered: %s", oneLine(message), oneLine(response))
	r := []rune(line)
	if maxChars > 0 && len(r) > maxChars {
		return string(r[:maxChars-1]) + "…"
	}
	return line
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

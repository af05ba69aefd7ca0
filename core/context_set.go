package core

import "sync"

// ContextContainer is a named, visibility-scoped blob of shared text ("context set").
// SetName is its only identity: writing a set with an existing name overwrites it.
type ContextContainer struct {
	SetName          string   `json:"setName"`
	Text             string   `json:"text"`
	Lines            []string `json:"lines,omitempty"`
	IsDisabled       bool     `json:"isDisabled,omitempty"`
	HiddenFromAgents []string `json:"hiddenFromAgents,omitempty"`
}

// Clone returns a deep copy.
func (c ContextContainer) Clone() ContextContainer {
	out := c
	out.Lines = append([]string(nil), c.Lines...)
	out.HiddenFromAgents = append([]string(nil), c.HiddenFromAgents...)
	return out
}

// CloneSets deep-copies a slice of context sets.
func CloneSets(sets []ContextContainer) []ContextContainer {
	if sets == nil {
		return nil
	}
	out := make([]ContextContainer, len(sets))
	for i, s := range sets {
		out[i] = s.Clone()
	}
	return out
}

// ContextBoard holds the context-set list shared by every turn of one routed
// request. Each Update is applied atomically; there is no ordering guarantee
// between overlapping turns.
type ContextBoard struct {
	mu   sync.Mutex
	sets []ContextContainer
}

// NewContextBoard seeds a board with a copy of sets.
func NewContextBoard(sets []ContextContainer) *ContextBoard {
	return &ContextBoard{sets: CloneSets(sets)}
}

// Snapshot returns a copy of the current sets.
func (b *ContextBoard) Snapshot() []ContextContainer {
	b.mu.Lock()
	defer b.mu.Unlock()

	return CloneSets(b.sets)
}

// Update replaces the sets with fn's result when fn reports a change.
func (b *ContextBoard) Update(fn func([]ContextContainer) ([]ContextContainer, bool)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, changed := fn(CloneSets(b.sets))
	if changed {
		b.sets = next
	}

	return changed
}

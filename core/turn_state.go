package core

import "sync"

// TurnState is request-scoped state that lives for exactly one agent turn.
// Each turn gets a fresh value, so concurrent turns never share it.
type TurnState struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewTurnState returns an empty turn state.
func NewTurnState() *TurnState {
	return &TurnState{claimed: map[string]struct{}{}}
}

// Claim marks key as used for this turn. It returns false if key was
// already claimed.
func (t *TurnState) Claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.claimed[key]; ok {
		return false
	}
	t.claimed[key] = struct{}{}

	return true
}

// Release undoes a claim, letting a failed invocation be retried within the turn.
func (t *TurnState) Release(key string) {
	t.mu.Lock()
	delete(t.claimed, key)
	t.mu.Unlock()
}

// Claimed reports whether key has been claimed.
func (t *TurnState) Claimed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.claimed[key]

	return ok
}

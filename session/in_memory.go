package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// InMemoryStore is a volatile Store keeping conversations in a process local
// map. Conversations are cloned on the way in and out.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	now   func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: make(map[string]*Conversation), now: time.Now}
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, id string) (*Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, false, nil
	}
	return conv.Clone(), true, nil
}

// Save implements Store.
func (s *InMemoryStore) Save(_ context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("session: conversation id is empty")
	}

	cp := conv.Clone()
	cp.UpdatedAt = s.now()

	s.mu.Lock()
	s.convs[cp.ID] = cp
	s.mu.Unlock()

	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return fmt.Errorf("conversation %q: %w", id, core.ErrNotFound)
	}
	delete(s.convs, id)
	return nil
}

package core

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultMaxDepth allows self, peer and peer-of-peer.
const DefaultMaxDepth = 3

// ConversationState is the accumulator threaded through a chain of
// agent-to-agent hops. Every hop shares one transcript; only the level differs.
// Level 1 is the agent addressed by the user.
type ConversationState struct {
	level    int
	maxDepth int
	shared   *transcript
}

type transcript struct {
	mu       sync.Mutex
	response string
	history  []ServerMessage
	values   map[string]any
	authURL  string
}

// NewConversationState starts a chain at level 1. maxDepth <= 0 selects DefaultMaxDepth.
func NewConversationState(maxDepth int) *ConversationState {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &ConversationState{
		level:    1,
		maxDepth: maxDepth,
		shared:   &transcript{values: map[string]any{}},
	}
}

// Level returns the depth of this hop.
func (s *ConversationState) Level() int { return s.level }

// MaxDepth returns the configured ceiling.
func (s *ConversationState) MaxDepth() int { return s.maxDepth }

// Descend returns the state for the next hop, sharing the transcript.
func (s *ConversationState) Descend() (*ConversationState, error) {
	next := s.level + 1
	if next > s.maxDepth {
		return nil, fmt.Errorf("%w: level %d exceeds ceiling %d", ErrMaxDepth, next, s.maxDepth)
	}
	return &ConversationState{level: next, maxDepth: s.maxDepth, shared: s.shared}, nil
}

// Append adds messages to the shared transcript.
func (s *ConversationState) Append(msgs ...ServerMessage) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	s.shared.history = append(s.shared.history, msgs...)
}

// History returns a copy of the shared transcript.
func (s *ConversationState) History() []ServerMessage {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	return append([]ServerMessage(nil), s.shared.history...)
}

// SetResponse records the latest response of the chain.
func (s *ConversationState) SetResponse(r string) {
	s.shared.mu.Lock()
	s.shared.response = r
	s.shared.mu.Unlock()
}

// Response returns the latest response of the chain.
func (s *ConversationState) Response() string {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	return s.shared.response
}

// Set stores an arbitrary value in the shared state.
func (s *ConversationState) Set(k string, v any) {
	s.shared.mu.Lock()
	s.shared.values[k] = v
	s.shared.mu.Unlock()
}

// Get reads a value from the shared state.
func (s *ConversationState) Get(k string) (any, bool) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	v, ok := s.shared.values[k]

	return v, ok
}

// RequestAuth records an OAuth authorization URL the user must visit.
func (s *ConversationState) RequestAuth(url string) {
	s.shared.mu.Lock()
	s.shared.authURL = url
	s.shared.mu.Unlock()
}

// AuthURL returns the pending authorization URL, if any.
func (s *ConversationState) AuthURL() string {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	return s.shared.authURL
}

// Snapshot serializes level, response and values for ServerMessage.CurrentState.
func (s *ConversationState) Snapshot() json.RawMessage {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	b, err := json.Marshal(map[string]any{
		"level":    s.level,
		"response": s.shared.response,
		"state":    s.shared.values,
	})
	if err != nil {
		return nil
	}

	return b
}

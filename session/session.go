// Package session keeps multi-turn conversations between routed requests.
//
// A Conversation carries the transcript and the context sets a client
// continues with on its next message. The core never reads a Store itself;
// the HTTP server loads a conversation before routing and saves the
// response's history and context sets afterwards.
package session

import (
	"context"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// DefaultMaxHistory bounds the transcript kept per conversation.
const DefaultMaxHistory = 50

// Conversation is the persisted state of one client conversation.
type Conversation struct {
	ID          string                  `json:"id"`
	UserID      string                  `json:"userId"`
	Team        string                  `json:"team"`
	History     []core.ServerMessage    `json:"history,omitempty"`
	ContextSets []core.ContextContainer `json:"contextSets,omitempty"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

// Clone returns a deep copy of the slices so callers cannot mutate stored state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.History = append([]core.ServerMessage(nil), c.History...)
	cp.ContextSets = core.CloneSets(c.ContextSets)
	return &cp
}

// Apply folds a routed response into the conversation, keeping at most
// maxHistory messages (oldest dropped first).
func (c *Conversation) Apply(resp *core.AgentUserResponse, maxHistory int) {
	if resp == nil {
		return
	}
	if resp.History != nil {
		c.History = resp.History
	}
	if resp.ContextSets != nil {
		c.ContextSets = resp.ContextSets
	}
	if maxHistory > 0 && len(c.History) > maxHistory {
		c.History = append([]core.ServerMessage(nil), c.History[len(c.History)-maxHistory:]...)
	}
}

// Store persists conversations.
type Store interface {
	// Get returns a conversation; ok is false when it does not exist.
	Get(ctx context.Context, id string) (conv *Conversation, ok bool, err error)
	Save(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, id string) error
}

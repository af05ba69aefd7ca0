package core

import (
	"sync"
	"time"
)

// ChatEntry records one tool invocation or inter-agent message.
type ChatEntry struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	AgentName string    `json:"agentName,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatLog is an append-only audit trail. It is only read back for display or
// export. Safe for concurrent use.
type ChatLog struct {
	mu      sync.Mutex
	entries []ChatEntry
	now     func() time.Time
}

// NewChatLog returns an empty log stamped with wall-clock time.
func NewChatLog() *ChatLog {
	return &ChatLog{now: time.Now}
}

// Append adds an entry.
func (l *ChatLog) Append(role Role, agentName, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, ChatEntry{
		Role:      role,
		Message:   message,
		AgentName: agentName,
		Timestamp: l.now(),
	})
}

// Entries returns a copy of the log.
func (l *ChatLog) Entries() []ChatEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ChatEntry, len(l.entries))
	copy(out, l.entries)

	return out
}

// Len returns the number of entries.
func (l *ChatLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

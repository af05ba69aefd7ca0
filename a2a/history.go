package a2a

import (
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/teammesh/core"
)

// HistoryStrategy decides how much of the shared transcript a contacted peer
// gets to see.
type HistoryStrategy interface {
	Name() string
	Apply(history []core.ServerMessage) []core.ServerMessage
}

// HistorySelector picks the strategy for a hop. from is nil when the sender is
// not a team member.
type HistorySelector func(team *core.Team, from *core.Agent) HistoryStrategy

// DefaultHistorySelector passes the full transcript in auto mode, a summary
// when a manager delegates and nothing otherwise.
func DefaultHistorySelector(team *core.Team, from *core.Agent) HistoryStrategy {
	switch {
	case team != nil && team.Mode == core.ModeAuto:
		return FullHistory{}
	case from != nil && from.IsManager():
		return NewSummaryHistory()
	default:
		return NoHistory{}
	}
}

// FullHistory passes the transcript unmodified.
type FullHistory struct{}

// Name implements HistoryStrategy.
func (FullHistory) Name() string { return "full" }

// Apply implements HistoryStrategy.
func (FullHistory) Apply(history []core.ServerMessage) []core.ServerMessage {
	return append([]core.ServerMessage(nil), history...)
}

// NoHistory hands the peer an empty history. Specialists are stateless.
type NoHistory struct{}

// Name implements HistoryStrategy.
func (NoHistory) Name() string { return "none" }

// Apply implements HistoryStrategy.
func (NoHistory) Apply([]core.ServerMessage) []core.ServerMessage { return nil }

// SummaryHistory keeps a window of recent messages. The newest Keep messages
// are cut at FullChars; older ones shrink to their first sentence.
type SummaryHistory struct {
	Window    int
	Keep      int
	FullChars int
	// SentenceChars bounds a first sentence that never ends.
	SentenceChars int
}

// NewSummaryHistory returns the 8 message window with the last 2 kept fuller.
func NewSummaryHistory() SummaryHistory {
	return SummaryHistory{Window: 8, Keep: 2, FullChars: 1500, SentenceChars: 200}
}

// Name implements HistoryStrategy.
func (SummaryHistory) Name() string { return "summary" }

// Apply implements HistoryStrategy.
func (s SummaryHistory) Apply(history []core.ServerMessage) []core.ServerMessage {
	if len(history) == 0 {
		return nil
	}

	start := 0
	if s.Window > 0 && len(history) > s.Window {
		start = len(history) - s.Window
	}

	recent := history[start:]
	out := make([]core.ServerMessage, 0, len(recent))

	for i, m := range recent {
		m.SubMessages = nil
		m.CurrentState = nil

		if i >= len(recent)-s.Keep {
			m.Content = clip(m.Content, s.FullChars)
		} else {
			m.Content = firstSentence(m.Content, s.SentenceChars)
		}

		out = append(out, m)
	}

	return out
}

func firstSentence(s string, max int) string {
	s = strings.TrimSpace(s)

	for i, r := range s {
		switch r {
		case '\n':
			return clip(strings.TrimSpace(s[:i]), max)
		case '.', '!', '?':
			next := i + utf8.RuneLen(r)
			if next == len(s) || s[next] == ' ' || s[next] == '\n' {
				return clip(s[:next], max)
			}
		}
	}

	return clip(s, max)
}

func clip(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}

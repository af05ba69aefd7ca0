// Package contextset implements the pure operations of the context store: an
// ordered list of named, visibility-scoped text blobs shared between agents.
//
// Every function takes the current sets and returns a new slice; inputs are
// never mutated, so callers can snapshot and restore freely. Set names are
// matched after trimming and Unicode case folding. Visibility is given as an
// allow-list and stored as its complement (HiddenFromAgents) against the roster.
package contextset

import (
	"strings"

	"github.com/hupe1980/teammesh/core"
)

// Key normalizes a set or agent name for comparison.
func Key(name string) string {
	return core.NameKey(name)
}

// Index returns the position of the set named name, or -1.
func Index(sets []core.ContextContainer, name string) int {
	k := Key(name)
	for i := range sets {
		if Key(sets[i].SetName) == k {
			return i
		}
	}
	return -1
}

// Find returns a copy of the set named name.
func Find(sets []core.ContextContainer, name string) (core.ContextContainer, bool) {
	if i := Index(sets, name); i >= 0 {
		return sets[i].Clone(), true
	}
	return core.ContextContainer{}, false
}

// Add creates a set or, when title already exists, overwrites its content in
// place. visibleTo defaults to the author alone.
func Add(sets []core.ContextContainer, author string, allAgents []string, title, text string, visibleTo ...string) []core.ContextContainer {
	if len(visibleTo) == 0 {
		visibleTo = []string{author}
	}

	out := core.CloneSets(sets)
	entry := core.ContextContainer{
		SetName:          strings.TrimSpace(title),
		Text:             text,
		Lines:            splitLines(text),
		HiddenFromAgents: Hidden(allAgents, visibleTo),
	}

	if i := Index(out, title); i >= 0 {
		entry.SetName = out[i].SetName
		entry.IsDisabled = out[i].IsDisabled
		out[i] = entry
		return out
	}

	return append(out, entry)
}

// EditOptions selects the fields Edit changes. Nil fields are left alone.
type EditOptions struct {
	NewText   *string
	NewName   *string
	VisibleTo []string
	Disabled  *bool
}

// Edit changes an existing set. Renaming onto another set's name replaces
// that set. The bool reports whether name was found.
func Edit(sets []core.ContextContainer, allAgents []string, name string, opts EditOptions) ([]core.ContextContainer, bool) {
	i := Index(sets, name)
	if i < 0 {
		return core.CloneSets(sets), false
	}

	out := core.CloneSets(sets)
	entry := out[i]

	if opts.NewText != nil {
		entry.Text = *opts.NewText
		entry.Lines = splitLines(*opts.NewText)
	}
	if opts.VisibleTo != nil {
		entry.HiddenFromAgents = Hidden(allAgents, opts.VisibleTo)
	}
	if opts.Disabled != nil {
		entry.IsDisabled = *opts.Disabled
	}

	if opts.NewName != nil && strings.TrimSpace(*opts.NewName) != "" {
		newName := strings.TrimSpace(*opts.NewName)
		if j := Index(out, newName); j >= 0 && j != i {
			out = append(out[:j], out[j+1:]...)
			if j < i {
				i--
			}
		}
		entry.SetName = newName
	}

	out[i] = entry

	return out, true
}

// Delete removes the set named name.
func Delete(sets []core.ContextContainer, name string) ([]core.ContextContainer, bool) {
	i := Index(sets, name)
	out := core.CloneSets(sets)
	if i < 0 {
		return out, false
	}
	return append(out[:i], out[i+1:]...), true
}

// Clear empties the text and lines of the set named name, keeping the set.
func Clear(sets []core.ContextContainer, name string) ([]core.ContextContainer, bool) {
	i := Index(sets, name)
	out := core.CloneSets(sets)
	if i < 0 {
		return out, false
	}
	out[i].Text = ""
	out[i].Lines = nil
	return out, true
}

// Hidden computes allAgents minus visibleTo, preserving roster order.
func Hidden(allAgents, visibleTo []string) []string {
	allow := make(map[string]struct{}, len(visibleTo))
	for _, v := range visibleTo {
		allow[Key(v)] = struct{}{}
	}

	hidden := make([]string, 0, len(allAgents))
	for _, a := range allAgents {
		if _, ok := allow[Key(a)]; !ok {
			hidden = append(hidden, a)
		}
	}

	return hidden
}

// Visible returns the roster members that can see set.
func Visible(allAgents []string, set core.ContextContainer) []string {
	deny := make(map[string]struct{}, len(set.HiddenFromAgents))
	for _, h := range set.HiddenFromAgents {
		deny[Key(h)] = struct{}{}
	}

	visible := make([]string, 0, len(allAgents))
	for _, a := range allAgents {
		if _, ok := deny[Key(a)]; !ok {
			visible = append(visible, a)
		}
	}

	return visible
}

// IsVisibleTo reports whether agent may read set.
func IsVisibleTo(set core.ContextContainer, agent string) bool {
	k := Key(agent)
	for _, h := range set.HiddenFromAgents {
		if Key(h) == k {
			return false
		}
	}
	return true
}

// VisibleTo filters out disabled sets and sets hidden from agent.
func VisibleTo(sets []core.ContextContainer, agent string) []core.ContextContainer {
	out := make([]core.ContextContainer, 0, len(sets))
	for _, s := range sets {
		if s.IsDisabled || !IsVisibleTo(s, agent) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

// Render formats sets as prompt text.
func Render(sets []core.ContextContainer) string {
	var sb strings.Builder
	for i, s := range sets {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("### ")
		sb.WriteString(s.SetName)
		sb.WriteString("\n")
		if s.Text != "" {
			sb.WriteString(s.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func splitLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

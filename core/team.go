package core

import (
	"fmt"
	"strings"
)

// Team is a named roster of agents collaborating toward shared objectives.
// Agent names are unique within a team (case-insensitive).
type Team struct {
	Name       string            `json:"name" yaml:"name"`
	Objectives string            `json:"objectives,omitempty" yaml:"objectives,omitempty"`
	Mode       OrchestrationMode `json:"mode" yaml:"mode"`
	Agents     []Agent           `json:"agents" yaml:"agents"`
}

// Validate checks the roster invariants.
func (t *Team) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: team name is empty", ErrInvalidTeam)
	}

	seen := make(map[string]struct{}, len(t.Agents))
	for _, a := range t.Agents {
		key := NameKey(a.Name)
		if key == "" {
			return fmt.Errorf("%w: agent without name in team %q", ErrInvalidTeam, t.Name)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate agent %q in team %q", ErrInvalidTeam, a.Name, t.Name)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// FindAgent resolves a roster entry by name (trimmed, case-insensitive).
func (t *Team) FindAgent(name string) (*Agent, bool) {
	key := NameKey(name)
	for i := range t.Agents {
		if NameKey(t.Agents[i].Name) == key {
			return &t.Agents[i], true
		}
	}
	return nil, false
}

// AgentNames returns the roster names in declaration order.
func (t *Team) AgentNames() []string {
	names := make([]string, len(t.Agents))
	for i, a := range t.Agents {
		names[i] = a.Name
	}
	return names
}

// ContextManager returns the team's dedicated context-manager agent, if any.
func (t *Team) ContextManager() (*Agent, bool) {
	for i := range t.Agents {
		if t.Agents[i].Type == AgentTypeContextManager {
			return &t.Agents[i], true
		}
	}
	return nil, false
}

// Manager returns the first manager agent of the team, if any.
func (t *Team) Manager() (*Agent, bool) {
	for i := range t.Agents {
		if t.Agents[i].Type == AgentTypeManager {
			return &t.Agents[i], true
		}
	}
	return nil, false
}

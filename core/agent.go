package core

import (
	"fmt"
	"strings"
)

// AgentType is the archetype of an agent. It selects the implicit toolset and
// the prompt branch used for the agent.
type AgentType int

const (
	// AgentTypePlain is a general purpose agent without archetype specific behavior.
	AgentTypePlain AgentType = iota
	// AgentTypeManager coordinates the team and may address peers.
	AgentTypeManager
	// AgentTypeResearcher searches and scrapes the web.
	AgentTypeResearcher
	// AgentTypeContextManager curates the shared context sets.
	AgentTypeContextManager
	// AgentTypeRecords keeps structured records and files.
	AgentTypeRecords
	// AgentTypeToolOperator executes declared tools on behalf of the team.
	AgentTypeToolOperator
	// AgentTypeDynamicTool evaluates sandboxed scripts.
	AgentTypeDynamicTool

	agentTypeCount
)

var agentTypeNames = [agentTypeCount]string{
	AgentTypePlain:          "plain",
	AgentTypeManager:        "manager",
	AgentTypeResearcher:     "researcher",
	AgentTypeContextManager: "context-manager",
	AgentTypeRecords:        "records",
	AgentTypeToolOperator:   "tool-operator",
	AgentTypeDynamicTool:    "dynamic-tool",
}

// AgentTypes returns every known archetype in declaration order.
func AgentTypes() []AgentType {
	out := make([]AgentType, 0, agentTypeCount)
	for t := AgentTypePlain; t < agentTypeCount; t++ {
		out = append(out, t)
	}
	return out
}

// String returns the configuration name of the agent type.
func (t AgentType) String() string {
	if t < 0 || t >= agentTypeCount {
		return "unknown"
	}
	return agentTypeNames[t]
}

// ParseAgentType converts a configuration name into an AgentType.
func ParseAgentType(s string) (AgentType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")
	if norm == "" || norm == "other" {
		return AgentTypePlain, nil
	}
	for i, name := range agentTypeNames {
		if name == norm {
			return AgentType(i), nil
		}
	}
	return AgentTypePlain, fmt.Errorf("unknown agent type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t AgentType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognized names fall
// back to AgentTypePlain so a roster with an unfamiliar archetype still loads.
func (t *AgentType) UnmarshalText(b []byte) error {
	v, _ := ParseAgentType(string(b))
	*t = v
	return nil
}

// OrchestrationMode is the policy governing how agents address each other.
type OrchestrationMode int

const (
	// ModeDirect means the user addresses agents directly; no manager relays.
	ModeDirect OrchestrationMode = iota
	// ModeManager is a manager-directed workflow.
	ModeManager
	// ModeAuto lets an orchestrator pass full history between agents.
	ModeAuto
)

// String returns the configuration name of the mode.
func (m OrchestrationMode) String() string {
	switch m {
	case ModeManager:
		return "manager"
	case ModeAuto:
		return "auto"
	default:
		return "direct"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m OrchestrationMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *OrchestrationMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "direct":
		*m = ModeDirect
	case "manager", "manager-directed":
		*m = ModeManager
	case "auto", "orchestrator":
		*m = ModeAuto
	default:
		return fmt.Errorf("unknown orchestration mode %q", string(b))
	}
	return nil
}

// ContextPolicy governs how context-set edits are routed when a team has a
// dedicated context-manager agent.
type ContextPolicy int

const (
	// PolicyAdvisory tells other agents, via prompt text only, to route edits
	// through the context manager. Nothing prevents direct edits.
	PolicyAdvisory ContextPolicy = iota
	// PolicyOff adds no routing guidance.
	PolicyOff
	// PolicyEnforced withholds context-edit tools from every agent except the
	// context manager.
	PolicyEnforced
)

// String returns the configuration name of the policy.
func (p ContextPolicy) String() string {
	switch p {
	case PolicyOff:
		return "off"
	case PolicyEnforced:
		return "enforced"
	default:
		return "advisory"
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ContextPolicy) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "advisory":
		*p = PolicyAdvisory
	case "off", "none":
		*p = PolicyOff
	case "enforced", "strict":
		*p = PolicyEnforced
	default:
		return fmt.Errorf("unknown context policy %q", string(b))
	}
	return nil
}

// ModelConfig selects the provider and model an agent runs on.
type ModelConfig struct {
	Provider    string  `json:"provider" yaml:"provider" toml:"provider"`
	Name        string  `json:"name" yaml:"name" toml:"name"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature"`
	// Reasoning marks models that reject system messages.
	Reasoning bool `json:"reasoning,omitempty" yaml:"reasoning,omitempty" toml:"reasoning"`
	// MaxRetries is the provider SDK's own retry count (inner retry tier).
	MaxRetries int `json:"maxRetries,omitempty" yaml:"max_retries,omitempty" toml:"max_retries"`
}

// Agent is a configured LLM-backed actor. Agents are immutable for the
// duration of a turn.
type Agent struct {
	Name            string      `json:"name" yaml:"name"`
	Type            AgentType   `json:"type" yaml:"type"`
	Model           ModelConfig `json:"model" yaml:"model"`
	SystemPrompt    string      `json:"systemPrompt,omitempty" yaml:"system_prompt,omitempty"`
	RoleDescription string      `json:"roleDescription,omitempty" yaml:"role,omitempty"`
	Directives      []string    `json:"directives,omitempty" yaml:"directives,omitempty"`
	// Tools lists built-in tool ids and "custom:<id>" references.
	Tools            []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	AllowedContacts  []string `json:"allowedContacts,omitempty" yaml:"allowed_contacts,omitempty"`
	CustomTools      []string `json:"customTools,omitempty" yaml:"custom_tools,omitempty"`
	HasKnowledgeBase bool     `json:"hasKnowledgeBase,omitempty" yaml:"knowledge_base,omitempty"`
	// Training bypasses the team protocol; the agent behaves as a bare assistant.
	Training bool `json:"training,omitempty" yaml:"training,omitempty"`
}

// IsManager reports whether the agent coordinates the team.
func (a *Agent) IsManager() bool { return a.Type == AgentTypeManager }

// CanContact reports whether the agent may address the named peer. An empty
// AllowedContacts list allows every peer.
func (a *Agent) CanContact(name string) bool {
	if len(a.AllowedContacts) == 0 {
		return true
	}
	for _, c := range a.AllowedContacts {
		if SameName(c, name) {
			return true
		}
	}
	return false
}

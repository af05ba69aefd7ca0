package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

// TeamBuilder assembles a core.Team with fluent chaining.
//
//	team := NewTeamBuilder("ops").Mode(core.ModeManager).
//		Agent("Boss", core.AgentTypeManager).
//		Agent("Scout", core.AgentTypeResearcher).Build()
type TeamBuilder struct {
	team core.Team
}

// NewTeamBuilder starts a team named name in direct mode.
func NewTeamBuilder(name string) *TeamBuilder {
	return &TeamBuilder{team: core.Team{Name: name}}
}

// Mode sets the orchestration mode (chainable).
func (b *TeamBuilder) Mode(m core.OrchestrationMode) *TeamBuilder {
	b.team.Mode = m
	return b
}

// Objectives sets the team objectives (chainable).
func (b *TeamBuilder) Objectives(o string) *TeamBuilder {
	b.team.Objectives = o
	return b
}

// Agent appends an agent of type t running on the "scripted" provider (chainable).
func (b *TeamBuilder) Agent(name string, t core.AgentType, optFns ...func(a *core.Agent)) *TeamBuilder {
	a := core.Agent{
		Name:  name,
		Type:  t,
		Model: core.ModelConfig{Provider: "scripted", Name: "scripted"},
	}
	for _, fn := range optFns {
		fn(&a)
	}
	b.team.Agents = append(b.team.Agents, a)
	return b
}

// Build returns the team.
func (b *TeamBuilder) Build() *core.Team {
	t := b.team
	t.Agents = append([]core.Agent(nil), b.team.Agents...)
	return &t
}

// RunContext returns a root run context for team and user bound to
// context.Background, optionally selecting agent for the turn.
func RunContext(team *core.Team, userID, agent string, optFns ...func(o *core.RunOptions)) *core.RunContext {
	rc := core.NewRunContext(context.Background(), team, &core.SessionState{UserID: userID}, optFns...)
	if agent == "" {
		return rc
	}
	a, ok := team.FindAgent(agent)
	if !ok {
		panic("testutil: unknown agent " + agent)
	}
	return rc.ForTurn(a, nil, 0)
}

// ToolContext returns a tool context for agent on a fresh run context.
func ToolContext(team *core.Team, userID, agent string, optFns ...func(o *core.RunOptions)) *core.ToolContext {
	return core.NewToolContext(RunContext(team, userID, agent, optFns...), "fc-test")
}

// Credentials is a map backed core.CredentialStore keyed by "user/name".
type Credentials struct {
	mu     sync.Mutex
	values map[string]string
	calls  int
}

// NewCredentials returns a store seeded with "user/name" -> value pairs.
func NewCredentials(values map[string]string) *Credentials {
	if values == nil {
		values = map[string]string{}
	}
	return &Credentials{values: values}
}

// GetDecryptedCredential implements core.CredentialStore.
func (c *Credentials) GetDecryptedCredential(_ context.Context, userID, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	v, ok := c.values[userID+"/"+name]
	return v, ok, nil
}

// Calls returns the number of lookups performed.
func (c *Credentials) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

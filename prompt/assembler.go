// Package prompt assembles agent system prompts from the agent definition,
// the team roster, the visible context sets and retrieved memory.
package prompt

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/hupe1980/teammesh/contextset"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/util"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/tool"
)

// ToolBrief describes a loaded tool for the tool-operator directive blocks.
type ToolBrief struct {
	Name        string
	Description string
}

// Briefs lists the declared tools of set. Implicit archetype tools such as the
// context-set family carry their own instructions and get no directive block.
func Briefs(set *tool.Set) []ToolBrief {
	if set == nil {
		return nil
	}
	declared := set.Declared()
	out := make([]ToolBrief, 0, len(declared))
	for _, t := range declared {
		out = append(out, ToolBrief{Name: t.Name(), Description: t.Description()})
	}
	return out
}

// TeamContext is the team-level input of a prompt.
type TeamContext struct {
	Team        *core.Team
	UserName    string
	Rules       []string
	ContextSets []core.ContextContainer
	Snippets    Snippets
	Tools       []ToolBrief
}

// OrchestrationContext describes the hop when the agent was contacted by a peer.
type OrchestrationContext struct {
	From     string
	Level    int
	MaxDepth int
}

// Options configure an Assembler.
type Options struct {
	ContextPolicy core.ContextPolicy
	Logger        logging.Logger
}

// Assembler builds system prompts.
type Assembler struct {
	opts Options
}

// New creates an Assembler.
func New(optFns ...func(o *Options)) *Assembler {
	opts := Options{
		ContextPolicy: core.PolicyAdvisory,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Assembler{opts: opts}
}

type peer struct {
	Name string
	Type core.AgentType
	Role string
}

type promptData struct {
	Agent          *core.Agent
	Skill          string
	TeamName       string
	Objectives     string
	UserName       string
	Rules          []string
	Peers          []peer
	Manager        bool
	PeerTool       bool
	PeerToolName   string
	Tools          []ToolBrief
	ContextManager string
	ContextText    string
	Memory         []string
	Knowledge      []string
	From           string
	Level          int
	MaxDepth       int
}

// Build returns the system prompt for agent. Training agents get a minimal
// assistant prompt; everyone else gets the team protocol.
func (a *Assembler) Build(agent *core.Agent, message string, tc TeamContext, orch *OrchestrationContext) string {
	data := promptData{
		Agent:    agent,
		UserName: tc.UserName,
		Rules:    tc.Rules,
	}

	if tc.Team != nil {
		data.TeamName = tc.Team.Name
		data.Objectives = strings.TrimSpace(tc.Team.Objectives)
	}

	data.Skill = a.renderSkill(agent, data)

	if agent.Training {
		return a.execute(trainingTmpl, data)
	}

	data.Peers = peers(agent, tc.Team)

	if agent.IsManager() {
		data.Manager = true
		data.PeerTool = tc.Team != nil && tc.Team.Mode != core.ModeDirect
		data.PeerToolName = tool.AgentChatTool
	}

	if agent.Type == core.AgentTypeToolOperator {
		data.Tools = tc.Tools
	}

	if a.opts.ContextPolicy != core.PolicyOff && tc.Team != nil {
		if cm, ok := tc.Team.ContextManager(); ok && !core.SameName(cm.Name, agent.Name) {
			data.ContextManager = cm.Name
		}
	}

	data.ContextText = strings.TrimSpace(contextset.Render(contextset.VisibleTo(tc.ContextSets, agent.Name)))
	data.Memory = tc.Snippets.Memory
	if agent.HasKnowledgeBase {
		data.Knowledge = tc.Snippets.Knowledge
	}

	if orch != nil && orch.From != "" {
		data.From = orch.From
		data.Level = orch.Level
		data.MaxDepth = orch.MaxDepth
	}

	a.opts.Logger.Debug("prompt.build",
		"agent", agent.Name,
		"type", agent.Type.String(),
		"peers", len(data.Peers),
		"message_chars", len(message),
	)

	return a.execute(agentTmpl, data)
}

// renderSkill expands template markers in the agent's skill text. A broken
// template is used verbatim.
func (a *Assembler) renderSkill(agent *core.Agent, data promptData) string {
	skill := strings.TrimSpace(agent.SystemPrompt)
	if skill == "" {
		return ""
	}

	out, err := util.RenderTemplate(skill, data)
	if err != nil {
		a.opts.Logger.Warn("prompt.skill.template_error", "agent", agent.Name, "error", err)
		return skill
	}

	return out
}

func (a *Assembler) execute(tmpl *template.Template, data promptData) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		a.opts.Logger.Error("prompt.render.error", "template", tmpl.Name(), "error", err)
	}
	return strings.TrimSpace(buf.String())
}

func peers(agent *core.Agent, team *core.Team) []peer {
	if team == nil {
		return nil
	}

	var out []peer
	for _, p := range team.Agents {
		if core.SameName(p.Name, agent.Name) || !agent.CanContact(p.Name) {
			continue
		}
		out = append(out, peer{Name: p.Name, Type: p.Type, Role: p.RoleDescription})
	}

	return out
}

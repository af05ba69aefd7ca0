// Package a2a implements the agent-to-agent channel: one agent addresses a
// peer by name, the peer runs a full turn and its reply flows back as the
// result of the caller's tool call.
//
// Hops share a single core.ConversationState. Each hop descends one level and
// fails with core.ErrMaxDepth past the configured ceiling. A pairwise guard
// rejects a second concurrent conversation between the same ordered pair.
package a2a

import (
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/memory"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/prompt"
	"github.com/hupe1980/teammesh/tool"
)

// BusyMessage answers a duplicate conversation between the same pair.
const BusyMessage = "already in conversation, please wait"

// ModelResolver maps an agent's model configuration to a Model.
// *model.Registry satisfies it.
type ModelResolver interface {
	Resolve(cfg core.ModelConfig) (model.Model, error)
}

// ChatResult is the outcome of one hop.
type ChatResult struct {
	Response    string
	ContextSets []core.ContextContainer
	State       *core.ConversationState
	// Busy is set when the pair guard rejected the call.
	Busy bool
}

// Options configure a Channel.
type Options struct {
	Loader    *tool.Loader
	Assembler *prompt.Assembler
	Retriever *prompt.Retriever
	Executor  *flow.Executor
	// Diary records a one-line summary of every turn. Optional.
	Diary *memory.Diary
	// DiaryChars bounds a diary line.
	DiaryChars int
	// Throttle runs before every peer call.
	Throttle flow.Throttle
	History  HistorySelector
	// MaxSteps is the per-turn step budget; 0 uses the executor's.
	MaxSteps int
	Tracer   trace.Tracer
}

// Channel runs agent turns and peer conversations.
type Channel struct {
	models ModelResolver
	opts   Options

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a Channel and installs it as the loader's peer messenger.
func New(models ModelResolver, optFns ...func(o *Options)) *Channel {
	opts := Options{
		DiaryChars: 400,
		History:    DefaultHistorySelector,
		Tracer:     otel.Tracer("github.com/hupe1980/teammesh/a2a"),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Loader == nil {
		opts.Loader = tool.NewLoader()
	}
	if opts.Assembler == nil {
		opts.Assembler = prompt.New(func(o *prompt.Options) {
			o.ContextPolicy = opts.Loader.ContextPolicy()
		})
	}
	if opts.Retriever == nil {
		opts.Retriever = prompt.NewRetriever(nil)
	}
	if opts.Executor == nil {
		opts.Executor = flow.New()
	}
	if opts.Throttle == nil {
		opts.Throttle = flow.NewFixedDelay(flow.DefaultThrottleDelay)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = opts.Executor.MaxSteps()
	}

	c := &Channel{
		models: models,
		opts:   opts,
		active: make(map[string]struct{}),
	}

	opts.Loader.SetMessenger(c)

	return c
}

// MessageAgent implements tool.AgentMessenger.
func (c *Channel) MessageAgent(toolCtx *core.ToolContext, to, message string) (string, error) {
	runCtx := toolCtx.RunContext()

	res, err := c.Chat(runCtx, runCtx.Conversation.Level(), to, runCtx.AgentName(), message, runCtx.Conversation)
	if err != nil {
		return "", err
	}

	return res.Response, nil
}

// Chat delivers message from one agent to another at the caller's level and
// runs the recipient's turn one level deeper. state is the caller's hop; nil
// uses runCtx.Conversation.
func (c *Channel) Chat(runCtx *core.RunContext, level int, to, from, message string, state *core.ConversationState) (*ChatResult, error) {
	if state == nil {
		state = runCtx.Conversation
	}
	if level != state.Level() {
		runCtx.LogWarn("a2a.level.mismatch", "from", from, "to", to, "level", level, "state_level", state.Level())
	}

	recipient, ok := runCtx.Team.FindAgent(to)
	if !ok {
		return nil, core.UnknownAgentError(to)
	}
	sender, _ := runCtx.Team.FindAgent(from)

	peerState, err := state.Descend()
	if err != nil {
		runCtx.LogWarn("a2a.depth.exceeded", "from", from, "to", recipient.Name, "level", state.Level())
		return nil, err
	}

	release, ok := c.acquire(from, recipient.Name)
	if !ok {
		runCtx.LogInfo("a2a.pair.busy", "from", from, "to", recipient.Name)
		return &ChatResult{Response: BusyMessage, ContextSets: runCtx.Board.Snapshot(), State: state, Busy: true}, nil
	}
	defer release()

	ctx, span := c.opts.Tracer.Start(runCtx.Context, "a2a.chat", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", recipient.Name),
		attribute.Int("level", peerState.Level()),
	))
	defer span.End()

	runCtx = runCtx.WithContext(ctx)

	if err := c.opts.Throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}

	strategy := c.opts.History(runCtx.Team, sender)
	history := strategy.Apply(state.History())

	runCtx.LogInfo("a2a.chat.start",
		"from", from,
		"to", recipient.Name,
		"level", peerState.Level(),
		"history", strategy.Name(),
		"history_len", len(history),
	)
	runCtx.ChatLog.Append(core.RoleAssistant, from, fmt.Sprintf("-> %s: %s", recipient.Name, message))

	res, err := c.dispatch(runCtx, recipient, message, history, peerState, from)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &ChatResult{
		Response:    res.Text,
		ContextSets: runCtx.Board.Snapshot(),
		State:       peerState,
	}, nil
}

// Dispatch runs one turn of agent at the hop described by state: tools are
// loaded, memory retrieved, the prompt built and the model resolved before the
// executor takes over. The exchange is appended to the transcript and the
// chat log.
func (c *Channel) Dispatch(runCtx *core.RunContext, agent *core.Agent, message string, history []core.ServerMessage, state *core.ConversationState) (*flow.TurnResult, error) {
	return c.dispatch(runCtx, agent, message, history, state, "")
}

func (c *Channel) dispatch(runCtx *core.RunContext, agent *core.Agent, message string, history []core.ServerMessage, state *core.ConversationState, from string) (*flow.TurnResult, error) {
	if agent == nil {
		return nil, errors.New("a2a: no agent to dispatch")
	}

	turnCtx := runCtx.ForTurn(agent, state, c.opts.MaxSteps)
	state = turnCtx.Conversation

	tools, err := c.opts.Loader.Load(turnCtx, agent)
	if err != nil {
		return nil, fmt.Errorf("load tools for %s: %w", agent.Name, err)
	}

	snippets, err := c.opts.Retriever.Retrieve(turnCtx.Context, turnCtx.UserID(), turnCtx.TeamName(), agent, message)
	if err != nil {
		turnCtx.LogWarn("a2a.retrieve.failed", "agent", agent.Name, "error", err)
	}

	tc := prompt.TeamContext{
		Team:        turnCtx.Team,
		UserName:    turnCtx.Session.UserName(),
		Rules:       turnCtx.Session.Rules,
		ContextSets: turnCtx.Board.Snapshot(),
		Snippets:    snippets,
		Tools:       prompt.Briefs(tools),
	}

	var orch *prompt.OrchestrationContext
	if from != "" {
		orch = &prompt.OrchestrationContext{From: from, Level: state.Level(), MaxDepth: state.MaxDepth()}
	}

	systemPrompt := c.opts.Assembler.Build(agent, message, tc, orch)

	m, err := c.models.Resolve(agent.Model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agent.Name, err)
	}

	res, err := c.opts.Executor.RunTurn(turnCtx, flow.TurnInput{
		Message:      message,
		History:      history,
		Tools:        tools,
		SystemPrompt: systemPrompt,
		Model:        m,
	})
	if err != nil {
		return nil, err
	}

	sender := from
	if sender == "" {
		sender = turnCtx.Session.UserName()
	}

	state.SetResponse(res.Text)
	state.Append(
		core.ServerMessage{Role: core.RoleUser, Content: message, AgentName: from, ConversationLevel: state.Level()},
		core.ServerMessage{
			Role:              core.RoleAssistant,
			Content:           res.Text,
			AgentName:         agent.Name,
			ConversationLevel: state.Level(),
			CurrentState:      state.Snapshot(),
		},
	)
	turnCtx.ChatLog.Append(core.RoleAssistant, agent.Name, res.Text)

	c.writeDiary(turnCtx, agent, sender, message, res.Text)

	return res, nil
}

func (c *Channel) writeDiary(runCtx *core.RunContext, agent *core.Agent, sender, message, reply string) {
	if c.opts.Diary == nil || agent.Training {
		return
	}

	entry := memory.Summarize(message, reply, c.opts.DiaryChars)
	if sender != "" {
		entry = sender + ": " + entry
	}

	if _, err := c.opts.Diary.Write(runCtx.Context, runCtx.UserID(), agent.Name, runCtx.TeamName(), entry); err != nil {
		runCtx.LogWarn("a2a.diary.failed", "agent", agent.Name, "error", err)
	}
}

// acquire claims the ordered (from, to) pair. The returned func releases it.
func (c *Channel) acquire(from, to string) (func(), bool) {
	key := core.NameKey(from) + "\x00" + core.NameKey(to)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.active[key]; busy {
		return nil, false
	}
	c.active[key] = struct{}{}

	return func() {
		c.mu.Lock()
		delete(c.active, key)
		c.mu.Unlock()
	}, true
}

// Active reports whether a conversation from -> to is in flight.
func (c *Channel) Active(from, to string) bool {
	key := core.NameKey(from) + "\x00" + core.NameKey(to)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.active[key]

	return ok
}

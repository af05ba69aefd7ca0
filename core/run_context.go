package core

import (
	"context"

	"github.com/hupe1980/teammesh/logging"
)

// Services bundles the external boundaries a turn may reach. Any field may be nil.
type Services struct {
	Store       DataStore
	Searcher    Searcher
	Indexer     Indexer
	Credentials CredentialStore
}

// RunContext carries the execution scope of one agent turn:
//   - the ambient cancellation Context
//   - identifiers (RunID, Session user) and the roster (Team, Agent)
//   - the shared ContextBoard and ChatLog of the routed request
//   - the ConversationState of the current hop
//   - per-turn TurnState and StepLimiter
//   - backing Services
//
// Derive a RunContext for another agent or hop with ForTurn; the shared parts
// are kept, the per-turn parts are fresh.
type RunContext struct {
	Context      context.Context
	RunID        string
	Session      *SessionState
	Team         *Team
	Agent        *Agent
	Conversation *ConversationState
	Board        *ContextBoard
	ChatLog      *ChatLog
	Limiter      *StepLimiter
	Turn         *TurnState
	Services     Services

	*loggerAdapter
}

// RunOptions configure NewRunContext.
type RunOptions struct {
	RunID       string
	ContextSets []ContextContainer
	MaxDepth    int
	MaxSteps    int
	Services    Services
	Logger      logging.Logger
}

// NewRunContext builds the root context of a routed request. The agent is
// unset until ForTurn selects one.
func NewRunContext(ctx context.Context, team *Team, session *SessionState, optFns ...func(o *RunOptions)) *RunContext {
	opts := RunOptions{
		RunID:    NewID(),
		MaxDepth: DefaultMaxDepth,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if session == nil {
		session = &SessionState{}
	}

	return &RunContext{
		Context:       ctx,
		RunID:         opts.RunID,
		Session:       session,
		Team:          team,
		Conversation:  NewConversationState(opts.MaxDepth),
		Board:         NewContextBoard(opts.ContextSets),
		ChatLog:       NewChatLog(),
		Limiter:       NewStepLimiter(opts.MaxSteps),
		Turn:          NewTurnState(),
		Services:      opts.Services,
		loggerAdapter: newLoggerAdapter(opts.Logger),
	}
}

// ForTurn derives the context for a new turn of agent at conversation state
// conv. Board, ChatLog, Services and Session are shared; TurnState and the
// step limiter are fresh.
func (rc *RunContext) ForTurn(agent *Agent, conv *ConversationState, maxSteps int) *RunContext {
	if conv == nil {
		conv = rc.Conversation
	}

	return &RunContext{
		Context:       rc.Context,
		RunID:         rc.RunID,
		Session:       rc.Session,
		Team:          rc.Team,
		Agent:         agent,
		Conversation:  conv,
		Board:         rc.Board,
		ChatLog:       rc.ChatLog,
		Limiter:       NewStepLimiter(maxSteps),
		Turn:          NewTurnState(),
		Services:      rc.Services,
		loggerAdapter: rc.loggerAdapter,
	}
}

// WithContext returns a shallow copy bound to ctx.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// UserID returns the session user.
func (rc *RunContext) UserID() string { return rc.Session.UserID }

// TeamName returns the team name, or "" when no team is set.
func (rc *RunContext) TeamName() string {
	if rc.Team == nil {
		return ""
	}
	return rc.Team.Name
}

// AgentName returns the name of the agent running this turn.
func (rc *RunContext) AgentName() string {
	if rc.Agent == nil {
		return ""
	}
	return rc.Agent.Name
}

// AllAgentNames returns the roster used for context-set visibility.
func (rc *RunContext) AllAgentNames() []string {
	if rc.Team == nil {
		return nil
	}
	return rc.Team.AgentNames()
}

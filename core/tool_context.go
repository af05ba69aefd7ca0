package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/teammesh/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// during an agent turn. It exposes the per-turn claim registry, the shared
// context board, the chat log and backing services without leaking the full
// RunContext.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext and
// function call id.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Agent returns the agent running the turn.
func (tc *ToolContext) Agent() *Agent { return tc.runCtx.Agent }

// AgentName returns the name of the agent running the turn.
func (tc *ToolContext) AgentName() string { return tc.runCtx.AgentName() }

// Team returns the roster.
func (tc *ToolContext) Team() *Team { return tc.runCtx.Team }

// TeamName returns the team name, or "" when no team is set.
func (tc *ToolContext) TeamName() string { return tc.runCtx.TeamName() }

// UserID returns the session user.
func (tc *ToolContext) UserID() string { return tc.runCtx.UserID() }

// Claim marks key as used for the current turn; false means it was already used.
func (tc *ToolContext) Claim(key string) bool { return tc.runCtx.Turn.Claim(key) }

// Release undoes a Claim.
func (tc *ToolContext) Release(key string) { tc.runCtx.Turn.Release(key) }

// ContextSets returns a snapshot of the shared context sets.
func (tc *ToolContext) ContextSets() []ContextContainer { return tc.runCtx.Board.Snapshot() }

// UpdateContextSets applies fn to the shared context sets.
func (tc *ToolContext) UpdateContextSets(fn func([]ContextContainer) ([]ContextContainer, bool)) bool {
	return tc.runCtx.Board.Update(fn)
}

// AllAgentNames returns the roster used for visibility computation.
func (tc *ToolContext) AllAgentNames() []string { return tc.runCtx.AllAgentNames() }

// Conversation returns the state of the current hop.
func (tc *ToolContext) Conversation() *ConversationState { return tc.runCtx.Conversation }

// RequestAuth surfaces an OAuth authorization URL to the router.
func (tc *ToolContext) RequestAuth(url string) {
	tc.runCtx.Conversation.RequestAuth(url)
	tc.LogInfo("tool.auth.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
}

// Record appends an entry to the audit log.
func (tc *ToolContext) Record(role Role, message string) {
	tc.runCtx.ChatLog.Append(role, tc.AgentName(), message)
}

// Store returns the persistence boundary or an error when unconfigured.
func (tc *ToolContext) Store() (DataStore, error) {
	if tc.runCtx.Services.Store == nil {
		return nil, fmt.Errorf("data store not configured")
	}
	return tc.runCtx.Services.Store, nil
}

// Search queries the similarity boundary.
func (tc *ToolContext) Search(query, namespace string, filter map[string]any, topK int) ([]SearchResult, error) {
	if tc.runCtx.Services.Searcher == nil {
		return nil, fmt.Errorf("searcher not configured")
	}
	return tc.runCtx.Services.Searcher.Search(tc.Context(), query, namespace, filter, topK)
}

// RunContext exposes the parent context to orchestration code such as the
// agent-to-agent channel. Tools should prefer the narrower accessors.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }

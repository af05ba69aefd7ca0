package a2a

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/testutil"
	"github.com/hupe1980/teammesh/memory"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/store"
	"github.com/hupe1980/teammesh/tool"
)

type countingThrottle struct{ n atomic.Int32 }

func (c *countingThrottle) Wait(context.Context) error {
	c.n.Add(1)
	return nil
}

func managerTeam() *core.Team {
	return testutil.NewTeamBuilder("ops").
		Mode(core.ModeManager).
		Agent("Boss", core.AgentTypeManager).
		Agent("Scout", core.AgentTypeResearcher).
		Agent("Clerk", core.AgentTypePlain).
		Build()
}

func newChannel(m model.Model, optFns ...func(o *Options)) *Channel {
	registry := model.NewRegistry()
	registry.Use("scripted", m)

	return New(registry, append([]func(o *Options){func(o *Options) {
		o.Throttle = &countingThrottle{}
	}}, optFns...)...)
}

func TestDispatch_RecordsTranscriptAndDiary(t *testing.T) {
	team := managerTeam()
	st := store.NewInMemoryStore()
	index := memory.NewInMemoryIndex()
	m := model.NewScriptedModel([]model.Step{model.Text("Report filed.")})

	ch := newChannel(m, func(o *Options) { o.Diary = memory.NewDiary(st, index) })

	root := testutil.RunContext(team, "u1", "")
	clerk, _ := team.FindAgent("Clerk")

	res, err := ch.Dispatch(root, clerk, "file the report", nil, root.Conversation)
	require.NoError(t, err)
	assert.Equal(t, "Report filed.", res.Text)

	history := root.Conversation.History()
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "Clerk", history[1].AgentName)
	assert.Equal(t, 1, history[1].ConversationLevel)
	assert.NotEmpty(t, history[1].CurrentState)
	assert.Equal(t, "Report filed.", root.Conversation.Response())

	records, err := st.GetDataMany(context.Background(), core.DiaryNamespace("u1", "Clerk", "ops"), core.Meta{}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Content, "file the report")

	// The system prompt carries the team protocol.
	req := m.Requests()[0]
	assert.Equal(t, "system", req.Contents[0].Role)
	assert.Contains(t, req.Contents[0].Text(), "Clerk")
}

func TestDispatch_UnknownProviderIsConfigError(t *testing.T) {
	team := testutil.NewTeamBuilder("ops").
		Agent("Clerk", core.AgentTypePlain, func(a *core.Agent) { a.Model.Provider = "nope" }).
		Build()

	ch := newChannel(model.NewScriptedModel(nil))
	root := testutil.RunContext(team, "u1", "")
	clerk, _ := team.FindAgent("Clerk")

	_, err := ch.Dispatch(root, clerk, "hi", nil, nil)
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
	assert.True(t, errors.Is(err, model.ErrUnknownProvider))
}

func TestChat_UnknownRecipient(t *testing.T) {
	ch := newChannel(model.NewScriptedModel(nil))
	root := testutil.RunContext(managerTeam(), "u1", "Boss")

	_, err := ch.Chat(root, 1, "Ghost", "Boss", "hello", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownAgent))
}

func TestChat_DepthCeiling(t *testing.T) {
	ch := newChannel(model.NewScriptedModel(nil))
	root := testutil.RunContext(managerTeam(), "u1", "Boss")

	second, err := root.Conversation.Descend()
	require.NoError(t, err)
	third, err := second.Descend()
	require.NoError(t, err)

	_, err = ch.Chat(root, 3, "Scout", "Clerk", "dig deeper", third)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMaxDepth))
}

func TestChat_ManagerDelegatesThroughTool(t *testing.T) {
	team := managerTeam()
	m := model.NewScriptedModel([]model.Step{
		model.Calls(core.FunctionCall{
			ID:        "c1",
			Name:      tool.AgentChatTool,
			Arguments: `{"agent_name":"Scout","message":"find the launch date"}`,
		}),
		model.Text("It launches in May."),
		model.Text("Scout says May. COMPLETE"),
	})

	throttle := &countingThrottle{}
	ch := newChannel(m, func(o *Options) { o.Throttle = throttle })

	root := testutil.RunContext(team, "u1", "")
	boss, _ := team.FindAgent("Boss")

	res, err := ch.Dispatch(root, boss, "when do we launch?", nil, root.Conversation)
	require.NoError(t, err)
	assert.Equal(t, "Scout says May. COMPLETE", res.Text)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, int32(1), throttle.n.Load())

	reqs := m.Requests()
	require.Len(t, reqs, 3)

	// The peer's prompt knows who contacted it.
	assert.Contains(t, reqs[1].Contents[0].Text(), "Boss")

	toolMsg := reqs[2].Contents[len(reqs[2].Contents)-1]
	fr := toolMsg.Parts[0].(core.FunctionResponsePart).FunctionResponse
	assert.Equal(t, "It launches in May.", fr.Response)

	history := root.Conversation.History()
	require.Len(t, history, 4)
	assert.Equal(t, "Scout", history[1].AgentName)
	assert.Equal(t, 2, history[1].ConversationLevel)
	assert.Equal(t, "Boss", history[3].AgentName)
	assert.Equal(t, 1, history[3].ConversationLevel)

	assert.False(t, ch.Active("Boss", "Scout"))
}

func TestChat_UnknownRecipientWithAllowList(t *testing.T) {
	team := testutil.NewTeamBuilder("ops").
		Mode(core.ModeManager).
		Agent("Boss", core.AgentTypeManager, func(a *core.Agent) { a.AllowedContacts = []string{"Scout"} }).
		Agent("Scout", core.AgentTypeResearcher).
		Build()
	m := model.NewScriptedModel([]model.Step{
		model.Calls(core.FunctionCall{
			ID:        "c1",
			Name:      tool.AgentChatTool,
			Arguments: `{"agent_name":"Ghost","message":"anyone there?"}`,
		}),
		model.Text("unreachable"),
	})

	ch := newChannel(m)
	root := testutil.RunContext(team, "u1", "")
	boss, _ := team.FindAgent("Boss")

	_, err := ch.Dispatch(root, boss, "ask around", nil, root.Conversation)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
	assert.True(t, core.IsConfigError(err))
	assert.False(t, ch.Active("Boss", "Ghost"))
}

func TestDispatch_ToolOperatorPromptListsDeclaredToolsOnly(t *testing.T) {
	team := testutil.NewTeamBuilder("ops").
		Mode(core.ModeManager).
		Agent("Op", core.AgentTypeToolOperator, func(a *core.Agent) { a.Tools = []string{"web-fetch"} }).
		Build()
	m := model.NewScriptedModel([]model.Step{model.Text("Nothing to fetch. COMPLETE")})

	ch := newChannel(m)
	root := testutil.RunContext(team, "u1", "")
	op, _ := team.FindAgent("Op")

	res, err := ch.Dispatch(root, op, "check the status page", nil, root.Conversation)
	require.NoError(t, err)

	system := res.PromptUsed
	assert.Contains(t, system, "## web_fetch")
	assert.NotContains(t, system, "## "+tool.AddContextSetTool)
	assert.NotContains(t, system, "## "+tool.ClearContextSetTool)
}

func TestChat_PairGuard(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	m := model.NewScriptedModel(nil, func(o *model.ScriptedOptions) {
		o.Fallback = func(model.Request) (*model.Response, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return model.Text("done").Response, nil
		}
	})

	ch := newChannel(m)
	root := testutil.RunContext(managerTeam(), "u1", "Boss")

	var wg sync.WaitGroup
	wg.Add(1)

	var first *ChatResult
	var firstErr error
	go func() {
		defer wg.Done()
		first, firstErr = ch.Chat(root, 1, "Scout", "Boss", "one", nil)
	}()

	<-started
	assert.True(t, ch.Active("Boss", "Scout"))

	second, err := ch.Chat(root, 1, "scout", "boss", "two", nil)
	require.NoError(t, err)
	assert.True(t, second.Busy)
	assert.Equal(t, BusyMessage, second.Response)

	// The reverse direction is a different pair.
	assert.False(t, ch.Active("Scout", "Boss"))

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "done", first.Response)
	assert.False(t, ch.Active("Boss", "Scout"))

	third, err := ch.Chat(root, 1, "Scout", "Boss", "three", nil)
	require.NoError(t, err)
	assert.False(t, third.Busy)
	assert.Equal(t, "done", third.Response)
}

func TestChat_ReleasesGuardOnError(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Fail(errors.New("bad request"))})
	ch := newChannel(m)
	root := testutil.RunContext(managerTeam(), "u1", "Boss")

	_, err := ch.Chat(root, 1, "Scout", "Boss", "one", nil)
	require.Error(t, err)
	assert.False(t, ch.Active("Boss", "Scout"))
}

func TestChat_ManagerPassesSummary(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Text("ok")})
	ch := newChannel(m)
	root := testutil.RunContext(managerTeam(), "u1", "Boss")

	long := "First sentence here. " + strings.Repeat("filler ", 50)
	for i := 0; i < 10; i++ {
		root.Conversation.Append(core.ServerMessage{Role: core.RoleAssistant, Content: long, AgentName: "Boss"})
	}

	_, err := ch.Chat(root, 1, "Scout", "Boss", "summarize", nil)
	require.NoError(t, err)

	contents := m.Requests()[0].Contents
	// system + 8 history + user
	require.Len(t, contents, 10)
	assert.Equal(t, "First sentence here.", contents[1].Text())
	assert.Equal(t, strings.TrimSpace(long), strings.TrimSpace(contents[8].Text()))
}

func TestChat_SpecialistGetsNoHistory(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Text("ok")})
	ch := newChannel(m)
	root := testutil.RunContext(managerTeam(), "u1", "Clerk")
	root.Conversation.Append(core.ServerMessage{Role: core.RoleUser, Content: "earlier"})

	_, err := ch.Chat(root, 1, "Scout", "Clerk", "look this up", nil)
	require.NoError(t, err)

	contents := m.Requests()[0].Contents
	require.Len(t, contents, 2)
	assert.Equal(t, "look this up", contents[1].Text())
}

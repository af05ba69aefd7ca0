package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
)

var scout = &core.Agent{Name: "Scout", Type: core.AgentTypeResearcher, RoleDescription: "web research"}

func TestPreAnalyzer_Rewrite(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"keeps original", "original", "what about it?"},
		{"keeps original quoted", `"Original"`, "what about it?"},
		{"empty answer", "   ", "what about it?"},
		{"rewrites", "What is the launch date of Project Atlas?", "What is the launch date of Project Atlas?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.NewScriptedModel([]model.Step{model.Text(tt.answer)})
			pre := NewPreAnalyzer(m)

			got, err := pre.Rewrite(context.Background(), scout, "what about it?", []core.ServerMessage{
				{Role: core.RoleUser, Content: "Tell me about Project Atlas"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreAnalyzer_PromptCarriesHistory(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Text("original")})
	pre := NewPreAnalyzer(m, func(o *PreOptions) { o.HistoryWindow = 1 })

	_, err := pre.Rewrite(context.Background(), scout, "and the budget?", []core.ServerMessage{
		{Role: core.RoleUser, Content: "dropped"},
		{Role: core.RoleAssistant, Content: "Atlas launches in May.", AgentName: "Scout"},
	})
	require.NoError(t, err)

	text := m.Requests()[0].Contents[0].Text()
	assert.Contains(t, text, "assistant (Scout): Atlas launches in May.")
	assert.NotContains(t, text, "dropped")
	assert.Contains(t, text, "and the budget?")
	assert.Contains(t, text, "web research")
}

func TestPreAnalyzer_ErrorKeepsMessage(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Fail(errors.New("bad request"))})

	got, err := NewPreAnalyzer(m).Rewrite(context.Background(), scout, "hello there", nil)
	require.Error(t, err)
	assert.Equal(t, "hello there", got)
}

func TestPostAnalyzer_ParsesVerdict(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Text("Here you go:\n```json\n" +
		`{"flag":"complete","reason":"answered","message":"Atlas launches in May.","context":{"title":"Atlas","text":"Launch: May"}}` +
		"\n```")})

	res, err := NewPostAnalyzer(m).Evaluate(context.Background(), Invocation{
		Agent:    scout,
		Message:  "when does Atlas launch?",
		Response: "May. COMPLETE",
		ContextSets: []core.ContextContainer{
			{SetName: "Notes", Text: "visible note"},
			{SetName: "Secret", Text: "hidden note", HiddenFromAgents: []string{"Scout"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, core.FlagComplete, res.Flag)
	assert.Equal(t, "answered", res.Reason)
	assert.Equal(t, "Atlas launches in May.", res.Message)
	require.NotNil(t, res.Context)
	assert.Equal(t, "Atlas", res.Context.Title)

	text := m.Requests()[0].Contents[0].Text()
	assert.Contains(t, text, "The agent signalled COMPLETE.")
	assert.Contains(t, text, "visible note")
	assert.NotContains(t, text, "hidden note")
}

func TestPostAnalyzer_UnknownFlagStaysInAnalysis(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Text(`{"flag":"MAYBE","follow_up":"check the date"}`)})

	res, err := NewPostAnalyzer(m).Evaluate(context.Background(), Invocation{Agent: scout, Response: "not sure"})
	require.NoError(t, err)
	assert.Equal(t, core.FlagAnalysis, res.Flag)
	assert.Equal(t, "check the date", res.FollowUp)
	assert.Nil(t, res.Context)
}

func TestPostAnalyzer_FallsBackToSignal(t *testing.T) {
	m := model.NewScriptedModel([]model.Step{model.Text("looks fine to me")})

	res, err := NewPostAnalyzer(m).Evaluate(context.Background(), Invocation{
		Agent:    scout,
		Response: "Could not reach the site. FAIL:(site down)",
	})
	require.NoError(t, err)
	assert.Equal(t, core.FlagFail, res.Flag)
	assert.Equal(t, "site down", res.Reason)
	assert.Equal(t, "Could not reach the site.", res.Message)
}

func TestPostAnalyzer_ModelErrorPropagates(t *testing.T) {
	invalid := errors.New("invalid api key")
	m := model.NewScriptedModel([]model.Step{model.Fail(invalid)})

	_, err := NewPostAnalyzer(m).Evaluate(context.Background(), Invocation{Agent: scout, Response: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, invalid))
}

func TestSignalEvaluator(t *testing.T) {
	res, err := SignalEvaluator{}.Evaluate(context.Background(), Invocation{Response: "Working on it"})
	require.NoError(t, err)
	assert.Equal(t, core.FlagAnalysis, res.Flag)
	assert.Equal(t, DefaultFollowUp, res.FollowUp)

	res, err = SignalEvaluator{}.Evaluate(context.Background(), Invocation{Response: "Done. PASS:(handing to Clerk)"})
	require.NoError(t, err)
	assert.Equal(t, core.FlagPass, res.Flag)
	assert.Equal(t, "handing to Clerk", res.Reason)
	assert.False(t, strings.Contains(res.Message, "PASS"))
}

func TestDecodeObject(t *testing.T) {
	var v map[string]any
	assert.ErrorIs(t, decodeObject("no json", &v), errNoJSON)
	require.NoError(t, decodeObject(`prefix {"a":1} suffix`, &v))
	assert.Equal(t, float64(1), v["a"])
}

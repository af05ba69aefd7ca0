package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/testutil"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/tool"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	ch    chan time.Time
}

func newFakeTimer() *fakeTimer { return &fakeTimer{ch: make(chan time.Time, 16)} }

func (f *fakeTimer) Start(d time.Duration) {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	f.ch <- time.Now()
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) C() <-chan time.Time { return f.ch }

func (f *fakeTimer) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

func testRunContext(t *testing.T) *core.RunContext {
	t.Helper()
	team := testutil.NewTeamBuilder("ops").
		Agent("Writer", core.AgentTypePlain).
		Agent("Scout", core.AgentTypeResearcher).
		Build()
	return testutil.RunContext(team, "u1", "Writer")
}

func emptySchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func textSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	}
}

func echo() *tool.FunctionTool {
	return tool.NewFunctionTool("echo", "echo text", textSchema(),
		func(_ *core.ToolContext, args map[string]any) (any, error) { return args["text"], nil })
}

func newExecutor(timer *fakeTimer) *Executor {
	return New(func(o *Options) {
		o.Retry.Timer = timer
	})
}

func TestRunTurn_PlainReply(t *testing.T) {
	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{model.Text("  hello there  ")})

	res, err := New().RunTurn(runCtx, TurnInput{
		Message:      "hi",
		History:      []core.ServerMessage{{Role: core.RoleAssistant, Content: "earlier", AgentName: "Scout"}},
		SystemPrompt: "be brief",
		Model:        m,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, "be brief", res.PromptUsed)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 0, res.ToolCalls)

	require.Len(t, res.History, 3)
	assert.Equal(t, "earlier", res.History[0].Content)
	assert.Equal(t, core.RoleUser, res.History[1].Role)
	assert.Equal(t, "hi", res.History[1].Content)
	assert.Equal(t, core.RoleAssistant, res.History[2].Role)
	assert.Equal(t, "Writer", res.History[2].AgentName)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	contents := reqs[0].Contents
	require.Len(t, contents, 3)
	assert.Equal(t, "system", contents[0].Role)
	assert.Equal(t, "assistant", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "hi", contents[2].Text())
}

func TestRunTurn_ReasoningModelFoldsInstructions(t *testing.T) {
	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{model.Text("ok")}, func(o *model.ScriptedOptions) {
		o.Info.Reasoning = true
	})

	res, err := New().RunTurn(runCtx, TurnInput{Message: "question", SystemPrompt: "rules", Model: m})
	require.NoError(t, err)

	contents := m.Requests()[0].Contents
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
	assert.True(t, strings.HasPrefix(contents[0].Text(), "Instructions:\nrules"))
	assert.True(t, strings.HasSuffix(contents[0].Text(), "Request:\nquestion"))

	// History keeps the caller's message, not the folded one.
	assert.Equal(t, "question", res.History[0].Content)
}

func TestRunTurn_ToolLoop(t *testing.T) {
	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{
		model.Calls(core.FunctionCall{ID: "c1", Name: "echo", Arguments: `{"text":"pong"}`}),
		model.Text("done"),
	})

	res, err := New().RunTurn(runCtx, TurnInput{Message: "ping", Tools: tool.NewSet(echo()), Model: m})
	require.NoError(t, err)

	assert.Equal(t, "done", res.Text)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 1, res.ToolCalls)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Function.Name)

	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	assert.Equal(t, "tool", last.Role)
	require.Len(t, last.Parts, 1)
	fr, ok := last.Parts[0].(core.FunctionResponsePart)
	require.True(t, ok)
	assert.Equal(t, "c1", fr.FunctionResponse.ID)
	assert.Equal(t, "pong", fr.FunctionResponse.Response)

	entries := runCtx.ChatLog.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, `echo({"text":"pong"}) -> pong`, entries[0].Message)
}

func TestRunTurn_ToolFailuresReachModel(t *testing.T) {
	boom := tool.NewFunctionTool("boom", "fails", emptySchema(),
		func(*core.ToolContext, map[string]any) (any, error) { return nil, errors.New("disk full") })
	panicky := tool.NewFunctionTool("panicky", "panics", emptySchema(),
		func(*core.ToolContext, map[string]any) (any, error) { panic("kaboom") })

	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{
		model.Calls(
			core.FunctionCall{Name: "boom", Arguments: `{}`},
			core.FunctionCall{Name: "panicky", Arguments: `{}`},
			core.FunctionCall{Name: "missing", Arguments: `{}`},
			core.FunctionCall{Name: "echo", Arguments: `not json`},
		),
		model.Text("recovered"),
	})

	res, err := New().RunTurn(runCtx, TurnInput{Message: "go", Tools: tool.NewSet(boom, panicky, echo()), Model: m})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, 4, res.ToolCalls)

	reqs := m.Requests()
	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	require.Len(t, last.Parts, 4)

	got := make([]string, len(last.Parts))
	for i, p := range last.Parts {
		fr := p.(core.FunctionResponsePart).FunctionResponse
		got[i] = fr.Response
		// IDs are filled in request order.
		if fr.ID == "" {
			t.Fatalf("response %d has no id", i)
		}
	}

	assert.Equal(t, "Error [EXECUTION_ERROR]: disk full", got[0])
	assert.Equal(t, "Error: tool panicked: kaboom", got[1])
	assert.True(t, strings.HasPrefix(got[2], "Error [NOT_FOUND]"), got[2])
	assert.True(t, strings.HasPrefix(got[3], "Error [VALIDATION_ERROR]"), got[3])
	assert.Equal(t, "call_0", last.Parts[0].(core.FunctionResponsePart).FunctionResponse.ID)
}

func TestRunTurn_ConfigErrorAbortsTurn(t *testing.T) {
	lookup := tool.NewFunctionTool("lookup", "fails with config error", emptySchema(),
		func(*core.ToolContext, map[string]any) (any, error) { return nil, core.UnknownAgentError("Ghost") })

	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{
		model.Calls(core.FunctionCall{ID: "c1", Name: "lookup", Arguments: `{}`}),
		model.Text("never"),
	})

	_, err := New().RunTurn(runCtx, TurnInput{Message: "go", Tools: tool.NewSet(lookup), Model: m})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownAgent))
	assert.Equal(t, 1, m.Remaining())
}

func TestRunTurn_StepCap(t *testing.T) {
	runCtx := testRunContext(t)
	m := model.NewScriptedModel(nil, func(o *model.ScriptedOptions) {
		o.Fallback = func(model.Request) (*model.Response, error) {
			step := model.Calls(core.FunctionCall{Name: "echo", Arguments: `{"text":"again"}`})
			return step.Response, nil
		}
	})

	res, err := New().RunTurn(runCtx, TurnInput{Message: "loop", Tools: tool.NewSet(echo()), Model: m})
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxSteps, res.Steps)
	assert.Equal(t, DefaultMaxSteps, res.ToolCalls)
	assert.Len(t, m.Requests(), DefaultMaxSteps)
	assert.Empty(t, res.Text)
}

func TestRunTurn_RunContextLimiterWins(t *testing.T) {
	team := testutil.NewTeamBuilder("ops").Agent("Writer", core.AgentTypePlain).Build()
	root := testutil.RunContext(team, "u1", "")
	a, _ := team.FindAgent("Writer")
	runCtx := root.ForTurn(a, nil, 2)

	m := model.NewScriptedModel(nil, func(o *model.ScriptedOptions) {
		o.Fallback = func(model.Request) (*model.Response, error) {
			return model.Calls(core.FunctionCall{Name: "echo", Arguments: `{"text":"x"}`}).Response, nil
		}
	})

	res, err := New().RunTurn(runCtx, TurnInput{Message: "loop", Tools: tool.NewSet(echo()), Model: m})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps)
}

func TestRunTurn_TruncatesPrompt(t *testing.T) {
	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{model.Text("ok")})

	res, err := New().RunTurn(runCtx, TurnInput{
		Message:      "hi",
		SystemPrompt: strings.Repeat("a", DefaultMaxPromptChars+1000),
		Model:        m,
	})
	require.NoError(t, err)

	assert.Len(t, res.PromptUsed, DefaultMaxPromptChars)
	assert.Len(t, m.Requests()[0].Contents[0].Text(), DefaultMaxPromptChars)
}

func TestRunTurn_ToolsUnsupported(t *testing.T) {
	runCtx := testRunContext(t)
	m := model.NewScriptedModel([]model.Step{model.Text("ok")}, func(o *model.ScriptedOptions) {
		o.Info.SupportsTools = false
	})

	_, err := New().RunTurn(runCtx, TurnInput{Message: "hi", Tools: tool.NewSet(echo()), Model: m})
	require.NoError(t, err)
	assert.Empty(t, m.Requests()[0].Tools)
}

func TestRunTurn_RequiresModel(t *testing.T) {
	_, err := New().RunTurn(testRunContext(t), TurnInput{Message: "hi"})
	require.Error(t, err)
}

func TestRunTurn_OverloadRetry(t *testing.T) {
	overloaded := errors.New("anthropic: 529 Overloaded")

	t.Run("gives up after three retries", func(t *testing.T) {
		timer := newFakeTimer()
		m := model.NewScriptedModel([]model.Step{
			model.Fail(overloaded), model.Fail(overloaded), model.Fail(overloaded), model.Fail(overloaded),
			model.Text("too late"),
		})

		_, err := newExecutor(timer).RunTurn(testRunContext(t), TurnInput{Message: "hi", Model: m})
		require.Error(t, err)
		assert.True(t, errors.Is(err, overloaded))
		assert.Len(t, m.Requests(), 4)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, timer.Waits())
	})

	t.Run("recovers", func(t *testing.T) {
		timer := newFakeTimer()
		m := model.NewScriptedModel([]model.Step{
			model.Fail(overloaded), model.Fail(overloaded), model.Text("finally"),
		})

		res, err := newExecutor(timer).RunTurn(testRunContext(t), TurnInput{Message: "hi", Model: m})
		require.NoError(t, err)
		assert.Equal(t, "finally", res.Text)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Waits())
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		timer := newFakeTimer()
		invalid := errors.New("invalid api key")
		m := model.NewScriptedModel([]model.Step{model.Fail(invalid), model.Text("unused")})

		_, err := newExecutor(timer).RunTurn(testRunContext(t), TurnInput{Message: "hi", Model: m})
		require.Error(t, err)
		assert.True(t, errors.Is(err, invalid))
		assert.Len(t, m.Requests(), 1)
		assert.Empty(t, timer.Waits())
	})
}

func TestIsOverloaded(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Overloaded"), true},
		{errors.New("server OVERLOADED, try later"), true},
		{errors.New("rate limited"), false},
		{context.Canceled, false},
	}

	for _, tt := range tests {
		if got := IsOverloaded(tt.err); got != tt.want {
			t.Fatalf("IsOverloaded(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFixedDelay(t *testing.T) {
	var waited time.Duration
	fired := make(chan time.Time, 1)
	fired <- time.Now()

	d := NewFixedDelay(0)
	d.After = func(dur time.Duration) <-chan time.Time {
		waited = dur
		return fired
	}

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, DefaultThrottleDelay, waited)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.After = func(time.Duration) <-chan time.Time { return make(chan time.Time) }
	assert.ErrorIs(t, d.Wait(ctx), context.Canceled)
}

func TestRateThrottle(t *testing.T) {
	r := NewRateThrottle(60, 2)

	require.NoError(t, r.Wait(context.Background()))
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, r.Wait(ctx))

	assert.NoError(t, NoThrottle{}.Wait(context.Background()))
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/credential"
	"github.com/hupe1980/teammesh/internal/testutil"
	"github.com/hupe1980/teammesh/router"
	"github.com/hupe1980/teammesh/session"
	"github.com/hupe1980/teammesh/store"
)

// fakeMesh echoes the routed message and grows the history like the router does.
type fakeMesh struct {
	mu   sync.Mutex
	reqs []router.Request
	err  error
}

func (f *fakeMesh) Route(_ context.Context, req router.Request) (*core.AgentUserResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	addr, err := router.ParseAddress(req.Message)
	if addr == nil {
		return nil, nil
	}
	if err != nil {
		return &core.AgentUserResponse{AgentName: addr.Agent, ValidationError: err.Error()}, nil
	}

	reply := "echo: " + addr.Body
	return &core.AgentUserResponse{
		AgentName: addr.Agent,
		Response:  reply,
		Flag:      core.FlagComplete,
		History: append(append([]core.ServerMessage(nil), req.History...),
			core.ServerMessage{Role: core.RoleUser, Content: addr.Body},
			core.ServerMessage{Role: core.RoleAssistant, Content: reply, AgentName: addr.Agent},
		),
		ContextSets: req.ContextSets,
	}, nil
}

func (f *fakeMesh) Cancel(runID string) error {
	if runID == "run-1" {
		return nil
	}
	return errors.New("run not found")
}

func (f *fakeMesh) requests() []router.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]router.Request(nil), f.reqs...)
}

func teams() *config.TeamSet {
	return config.NewTeamSet(
		testutil.NewTeamBuilder("ops").Agent("Scout", core.AgentTypeResearcher).Agent("Boss", core.AgentTypeManager).Build(),
		testutil.NewTeamBuilder("sales").Agent("Rep", core.AgentTypePlain).Build(),
	)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoute(t *testing.T) {
	mesh := &fakeMesh{}
	h := New(mesh, teams()).Handler()

	rec := do(t, h, http.MethodPost, "/v1/route", `{"team":"OPS","message":"Scout:::find the launch date","userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "echo: find the launch date", out.Response)
	assert.Equal(t, core.FlagComplete, out.Flag)
	assert.NotEmpty(t, out.RunID)
	assert.Empty(t, out.SessionID)

	reqs := mesh.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "ops", reqs[0].Team.Name)
	assert.Equal(t, "u1", reqs[0].Session.UserID)
	assert.Equal(t, out.RunID, reqs[0].RunID)
}

func TestRoute_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{"team":`, nil, http.StatusBadRequest},
		{"unknown field", `{"team":"ops","message":"Scout:::hi","colour":"red"}`, nil, http.StatusBadRequest},
		{"missing message", `{"team":"ops"}`, nil, http.StatusBadRequest},
		{"unknown team", `{"team":"nope","message":"Scout:::hi"}`, nil, http.StatusNotFound},
		{"not addressed", `{"team":"ops","message":"hello there"}`, nil, http.StatusUnprocessableEntity},
		{"short body", `{"team":"ops","message":"Scout:::h"}`, nil, http.StatusUnprocessableEntity},
		{"unknown agent", `{"team":"ops","message":"Ghost:::hi"}`, core.UnknownAgentError("Ghost"), http.StatusNotFound},
		{"missing credential", `{"team":"ops","message":"Scout:::hi"}`, &core.MissingCredentialError{Tool: "crm", Credential: "CRM_KEY"}, http.StatusUnprocessableEntity},
		{"canceled", `{"team":"ops","message":"Scout:::hi"}`, context.Canceled, http.StatusConflict},
		{"internal", `{"team":"ops","message":"Scout:::hi"}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeMesh{err: tt.err}, teams()).Handler()
			rec := do(t, h, http.MethodPost, "/v1/route", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRoute_SessionContinuity(t *testing.T) {
	mesh := &fakeMesh{}
	sessions := session.NewInMemoryStore()
	h := New(mesh, teams(), func(o *Options) { o.Sessions = sessions }).Handler()

	for _, msg := range []string{"Scout:::first question", "Scout:::second question"} {
		rec := do(t, h, http.MethodPost, "/v1/route", `{"team":"ops","message":"`+msg+`","userId":"u1","sessionId":"s1"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	reqs := mesh.requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].History)
	require.Len(t, reqs[1].History, 2)
	assert.Equal(t, "first question", reqs[1].History[0].Content)

	conv, ok, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, conv.History, 4)

	// Another user cannot continue the conversation.
	rec := do(t, h, http.MethodPost, "/v1/route", `{"team":"ops","message":"Scout:::hijack","userId":"u2","sessionId":"s1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTeams(t *testing.T) {
	h := New(&fakeMesh{}, teams()).Handler()

	rec := do(t, h, http.MethodGet, "/v1/teams", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []TeamSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, TeamSummary{Name: "ops", Mode: "direct", Agents: []string{"Scout", "Boss"}}, list[0])

	rec = do(t, h, http.MethodGet, "/v1/teams/sales", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Rep"`)

	rec = do(t, h, http.MethodGet, "/v1/teams/none", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentials(t *testing.T) {
	rec := do(t, New(&fakeMesh{}, teams()).Handler(), http.MethodPost, "/v1/credentials", `{"userId":"u1","name":"K","value":"v"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	vault, err := credential.New(store.NewInMemoryStore(), "pass", func(o *credential.Options) { o.Iterations = 1000 })
	require.NoError(t, err)

	h := New(&fakeMesh{}, teams(), func(o *Options) { o.Credentials = vault }).Handler()

	rec = do(t, h, http.MethodPost, "/v1/credentials", `{"userId":"u1","name":"CRM_KEY","value":"abc123"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	got, ok, err := vault.GetDecryptedCredential(context.Background(), "u1", "CRM_KEY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", got)

	rec = do(t, h, http.MethodPost, "/v1/credentials", `{"userId":"u1","name":"CRM_KEY"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancel(t *testing.T) {
	h := New(&fakeMesh{}, teams()).Handler()

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/runs/run-1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/runs/run-2", "").Code)
}

func TestHealth(t *testing.T) {
	h := New(&fakeMesh{}, teams()).Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)

	h = New(&fakeMesh{}, teams(), func(o *Options) {
		o.Health = func(context.Context) error { return errors.New("db down") }
	}).Handler()
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestMiddleware_TraceAndCORS(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h := New(&fakeMesh{}, teams(), func(o *Options) {
		o.Tracer = tp.Tracer("test")
		o.CORSOrigins = []string{"https://app.example.com"}
	}).Handler()

	do(t, h, http.MethodGet, "/healthz", "")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /healthz", spans[0].Name())

	req := httptest.NewRequest(http.MethodOptions, "/v1/route", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Orchestration.Throttle.Duration)
	assert.Equal(t, core.DefaultMaxDepth, cfg.Orchestration.MaxDepth)
	assert.Equal(t, core.PolicyAdvisory, cfg.Orchestration.ContextPolicy)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "teammesh.toml", `
teams_dir = "/etc/teammesh/teams"

[server]
addr = ":9090"
cors_origins = ["https://app.example.com"]

[store]
driver = "sqlite"
dsn = "/var/lib/teammesh/data.db"

[providers.openai]
api_key = "from-file"

[orchestration]
max_steps = 4
throttle = "500ms"
context_policy = "enforced"

[orchestration.analysis_model]
provider = "openai"
name = "gpt-4o-mini"
`)

	t.Setenv("TEAMMESH_SERVER_ADDR", ":7070")
	t.Setenv("TEAMMESH_ANTHROPIC_API_KEY", "from-env")
	t.Setenv("TEAMMESH_MAX_DEPTH", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/teammesh/teams", cfg.TeamsDir)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "from-file", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "from-env", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, 4, cfg.Orchestration.MaxSteps)
	assert.Equal(t, 5, cfg.Orchestration.MaxDepth)
	assert.Equal(t, 500*time.Millisecond, cfg.Orchestration.Throttle.Duration)
	assert.Equal(t, core.PolicyEnforced, cfg.Orchestration.ContextPolicy)
	assert.Equal(t, "gpt-4o-mini", cfg.Orchestration.AnalysisModel.Name)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Orchestration.MaxIterations)
}

func TestLoad_Rejects(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		env     map[string]string
		want    string
	}{
		{name: "unknown key", content: "bogus = 1\n", want: "unknown keys bogus"},
		{name: "store without dsn", content: "[store]\ndriver = \"postgres\"\n", want: "requires a dsn"},
		{name: "unknown driver", content: "[vector]\ndriver = \"faiss\"\n", want: "unknown driver"},
		{name: "bad env int", content: "", env: map[string]string{"TEAMMESH_MAX_STEPS": "many"}, want: "TEAMMESH_MAX_STEPS"},
		{name: "bad env policy", content: "", env: map[string]string{"TEAMMESH_CONTEXT_POLICY": "loose"}, want: "unknown context policy"},
		{name: "zero iterations", content: "[orchestration]\nmax_iterations = 0\n", want: "max_iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, dir, "c.toml", tt.content)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const opsTeam = `
name: ops
objectives: Keep the lights on
mode: manager
agents:
  - name: Boss
    type: manager
    model: {provider: openai, name: gpt-4o}
  - name: Scout
    type: researcher
    tools: [web-search]
    allowed_contacts: [Boss]
  - name: Odd
    type: astronaut
`

func TestParseTeam(t *testing.T) {
	team, err := ParseTeam([]byte(opsTeam))
	require.NoError(t, err)

	assert.Equal(t, "ops", team.Name)
	assert.Equal(t, core.ModeManager, team.Mode)
	require.Len(t, team.Agents, 3)
	assert.Equal(t, core.AgentTypeManager, team.Agents[0].Type)
	assert.Equal(t, "gpt-4o", team.Agents[0].Model.Name)
	assert.Equal(t, []string{"web-search"}, team.Agents[1].Tools)
	assert.Equal(t, core.AgentTypePlain, team.Agents[2].Type)

	_, err = ParseTeam([]byte("name: x\nagents:\n  - name: A\n  - name: a\n"))
	assert.True(t, errors.Is(err, core.ErrInvalidTeam))

	_, err = ParseTeam([]byte("name: x\ncolour: blue\n"))
	assert.True(t, errors.Is(err, core.ErrInvalidTeam))
}

func TestLoadTeams(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ops.yaml", opsTeam)
	writeFile(t, dir, "sales.yml", "name: sales\nagents:\n  - name: Rep\n")
	writeFile(t, dir, "README.md", "not a team")

	teams, err := LoadTeams(dir)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "ops", teams[0].Name)
	assert.Equal(t, "sales", teams[1].Name)

	set := NewTeamSet(teams...)
	got, ok := set.Get(" OPS ")
	require.True(t, ok)
	assert.Equal(t, "ops", got.Name)

	writeFile(t, dir, "dup.yaml", "name: Sales\nagents: []\n")
	_, err = LoadTeams(dir)
	assert.True(t, errors.Is(err, core.ErrInvalidTeam))
}

func TestWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ops.yaml", opsTeam)

	teams, err := LoadTeams(dir)
	require.NoError(t, err)
	set := NewTeamSet(teams...)

	reloaded := make(chan error, 4)
	w, err := NewWatcher(dir, set, func(o *WatcherOptions) {
		o.Debounce = 20 * time.Millisecond
		o.OnReload = func(err error) { reloaded <- err }
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	writeFile(t, dir, "sales.yaml", "name: sales\nagents:\n  - name: Rep\n")

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after adding a team file")
	}

	_, ok := set.Get("sales")
	assert.True(t, ok)
	assert.Len(t, set.List(), 2)
}

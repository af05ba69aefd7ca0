package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentType(t *testing.T) {
	for _, at := range AgentTypes() {
		got, err := ParseAgentType(at.String())
		require.NoError(t, err)
		assert.Equal(t, at, got)
	}

	got, err := ParseAgentType("Context_Manager")
	require.NoError(t, err)
	assert.Equal(t, AgentTypeContextManager, got)

	got, err = ParseAgentType("other")
	require.NoError(t, err)
	assert.Equal(t, AgentTypePlain, got)

	_, err = ParseAgentType("wizard")
	assert.Error(t, err)

	var at AgentType
	require.NoError(t, at.UnmarshalText([]byte("wizard")))
	assert.Equal(t, AgentTypePlain, at)
}

func TestOrchestrationModeText(t *testing.T) {
	var m OrchestrationMode
	require.NoError(t, m.UnmarshalText([]byte("manager")))
	assert.Equal(t, ModeManager, m)
	require.NoError(t, m.UnmarshalText([]byte("auto")))
	assert.Equal(t, ModeAuto, m)
	assert.Error(t, m.UnmarshalText([]byte("chaos")))
}

func TestTeamValidate(t *testing.T) {
	team := Team{Name: "band", Agents: []Agent{{Name: "Dexter"}, {Name: "dexter "}}}
	err := team.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTeam))

	team.Agents[1].Name = "Rita"
	assert.NoError(t, team.Validate())

	a, ok := team.FindAgent("  RITA")
	require.True(t, ok)
	assert.Equal(t, "Rita", a.Name)

	_, ok = team.FindAgent("nobody")
	assert.False(t, ok)
}

func TestTeamArchetypeLookups(t *testing.T) {
	team := Team{Name: "t", Agents: []Agent{
		{Name: "Boss", Type: AgentTypeManager},
		{Name: "Keeper", Type: AgentTypeContextManager},
	}}
	cm, ok := team.ContextManager()
	require.True(t, ok)
	assert.Equal(t, "Keeper", cm.Name)

	m, ok := team.Manager()
	require.True(t, ok)
	assert.Equal(t, "Boss", m.Name)
}

func TestAgentCanContact(t *testing.T) {
	a := Agent{Name: "A"}
	assert.True(t, a.CanContact("anyone"))

	a.AllowedContacts = []string{"Bob"}
	assert.True(t, a.CanContact("bob"))
	assert.False(t, a.CanContact("Carol"))
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, NameKey("scout"), NameKey("  SCOUT "))
	assert.True(t, SameName("Straße", "STRASSE"))
	assert.False(t, SameName("Scout", "Clerk"))

	team := Team{Name: "ops", Agents: []Agent{{Name: "Straße"}}}
	a, ok := team.FindAgent(" strasse ")
	require.True(t, ok)
	assert.Equal(t, "Straße", a.Name)

	team.Agents = append(team.Agents, Agent{Name: "STRASSE"})
	assert.ErrorIs(t, team.Validate(), ErrInvalidTeam)

	boss := Agent{Name: "Boss", AllowedContacts: []string{"STRASSE"}}
	assert.True(t, boss.CanContact("Straße"))
}

func TestIsConfigError(t *testing.T) {
	assert.True(t, IsConfigError(UnknownAgentError("Ghost")))
	assert.True(t, IsConfigError(&MissingCredentialError{Tool: "crm", Credential: "K"}))
	assert.True(t, IsConfigError(fmt.Errorf("load: %w", ErrInvalidTeam)))
	assert.True(t, IsConfigError(ErrUnknownProvider))

	assert.False(t, IsConfigError(fmt.Errorf("hop: %w", ErrMaxDepth)))
	assert.False(t, IsConfigError(ErrStepLimit))
	assert.False(t, IsConfigError(errors.New("boom")))
}

func TestMissingCredentialErrorIs(t *testing.T) {
	var err error = &MissingCredentialError{Tool: "crm", Credential: "API_KEY"}
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "API_KEY")

	var mce *MissingCredentialError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, "crm", mce.Tool)
}

func TestParseNextFlag(t *testing.T) {
	assert.Equal(t, FlagPass, ParseNextFlag(" pass "))
	assert.Equal(t, FlagAuthURL, ParseNextFlag("AUTH_URL"))
	assert.Equal(t, FlagAnalysis, ParseNextFlag("maybe"))
	assert.False(t, FlagAnalysis.Terminal())
	assert.True(t, FlagInfoRequest.Terminal())
}

func TestChatLogConcurrentAppend(t *testing.T) {
	log := NewChatLog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(RoleAssistant, "A", "hi")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, log.Len())

	entries := log.Entries()
	entries[0].Message = "mutated"
	assert.Equal(t, "hi", log.Entries()[0].Message)
}

func TestTurnStateClaimOnce(t *testing.T) {
	ts := NewTurnState()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ts.Claim("add_context_set") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, ts.Claimed("add_context_set"))

	ts.Release("add_context_set")
	assert.True(t, ts.Claim("add_context_set"))
}

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepLimit))

	assert.Equal(t, -1, NewStepLimiter(0).Remaining())
}

func TestContextBoardUpdate(t *testing.T) {
	board := NewContextBoard([]ContextContainer{{SetName: "notes", Text: "a"}})

	changed := board.Update(func(sets []ContextContainer) ([]ContextContainer, bool) {
		sets[0].Text = "b"
		return sets, true
	})
	assert.True(t, changed)
	assert.Equal(t, "b", board.Snapshot()[0].Text)

	changed = board.Update(func(sets []ContextContainer) ([]ContextContainer, bool) {
		sets[0].Text = "ignored"
		return sets, false
	})
	assert.False(t, changed)
	assert.Equal(t, "b", board.Snapshot()[0].Text)

	snap := board.Snapshot()
	snap[0].Text = "local"
	assert.Equal(t, "b", board.Snapshot()[0].Text)
}

func TestNamespaces(t *testing.T) {
	assert.Equal(t, "diary-u1-Dexter-band", DiaryNamespace("u1", "Dexter", "band"))
	assert.Equal(t, "credential-u1", CredentialNamespace("u1"))
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/teammesh/core"
)

// ParseTeam decodes one YAML team definition and validates its roster.
func ParseTeam(data []byte) (*core.Team, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var team core.Team
	if err := dec.Decode(&team); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidTeam, err)
	}

	if err := team.Validate(); err != nil {
		return nil, err
	}

	return &team, nil
}

// LoadTeams reads every *.yaml and *.yml file in dir. Team names must be
// unique across files (case-insensitive).
func LoadTeams(dir string) ([]*core.Team, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read teams dir: %w", err)
	}

	var (
		teams []*core.Team
		errs  []error
		seen  = map[string]string{}
	)

	for _, e := range entries {
		if e.IsDir() || !isTeamFile(e.Name()) {
			continue
		}

		path := filepath.Join(dir, e.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		team, err := ParseTeam(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}

		key := strings.ToLower(team.Name)
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("%s: %w: team %q already defined in %s", e.Name(), core.ErrInvalidTeam, team.Name, prev))
			continue
		}
		seen[key] = e.Name()

		teams = append(teams, team)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })

	return teams, nil
}

func isTeamFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

// TeamSet is a concurrency-safe, replaceable set of teams.
type TeamSet struct {
	mu    sync.RWMutex
	teams map[string]*core.Team
}

// NewTeamSet creates a set holding teams.
func NewTeamSet(teams ...*core.Team) *TeamSet {
	s := &TeamSet{}
	s.Replace(teams)
	return s
}

// Replace swaps the whole set.
func (s *TeamSet) Replace(teams []*core.Team) {
	m := make(map[string]*core.Team, len(teams))
	for _, t := range teams {
		m[strings.ToLower(strings.TrimSpace(t.Name))] = t
	}

	s.mu.Lock()
	s.teams = m
	s.mu.Unlock()
}

// Get returns a team by name (case-insensitive).
func (s *TeamSet) Get(name string) (*core.Team, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// List returns the teams sorted by name.
func (s *TeamSet) List() []*core.Team {
	s.mu.RLock()
	out := make([]*core.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

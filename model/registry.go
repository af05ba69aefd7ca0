package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

// ErrUnknownProvider is returned by Registry.Resolve for an unregistered
// provider. It is a configuration error and aborts the turn.
var ErrUnknownProvider = core.ErrUnknownProvider

// Factory builds a Model for an agent's model configuration.
type Factory func(cfg core.ModelConfig) (Model, error)

// Registry resolves core.ModelConfig.Provider to an adapter. Resolved models
// are cached per configuration so SDK clients are reused across turns.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     map[core.ModelConfig]Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
		cache:     map[core.ModelConfig]Model{},
	}
}

// Register installs factory under provider (case-insensitive), replacing any
// previous registration.
func (r *Registry) Register(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeProvider(provider)
	r.factories[key] = factory

	for cfg := range r.cache {
		if normalizeProvider(cfg.Provider) == key {
			delete(r.cache, cfg)
		}
	}
}

// Use registers a fixed model for provider. Handy for tests and single-model setups.
func (r *Registry) Use(provider string, m Model) {
	r.Register(provider, func(core.ModelConfig) (Model, error) { return m, nil })
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}

	return out
}

// Resolve returns the model for cfg.
func (r *Registry) Resolve(cfg core.ModelConfig) (Model, error) {
	r.mu.RLock()
	if m, ok := r.cache[cfg]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	factory, ok := r.factories[normalizeProvider(cfg.Provider)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	m, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("model provider %q: %w", cfg.Provider, err)
	}

	r.mu.Lock()
	r.cache[cfg] = m
	r.mu.Unlock()

	return m, nil
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

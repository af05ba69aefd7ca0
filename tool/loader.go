package tool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/teammesh/core"
)

// LoaderOptions configure a Loader.
type LoaderOptions struct {
	Registry      CustomRegistry
	Credentials   core.CredentialStore
	Deps          Deps
	Factories     map[BuiltinID]Factory
	Implicit      ImplicitTable
	ContextPolicy core.ContextPolicy
}

// Loader assembles the toolset of an agent for one turn.
type Loader struct {
	opts LoaderOptions
}

// NewLoader creates a Loader with the stock factories and implicit table.
func NewLoader(optFns ...func(o *LoaderOptions)) *Loader {
	opts := LoaderOptions{
		ContextPolicy: core.PolicyAdvisory,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Factories == nil {
		opts.Factories = DefaultFactories()
	}
	if opts.Implicit == nil {
		opts.Implicit = DefaultImplicitTable()
	}
	opts.Deps = opts.Deps.withDefaults()

	return &Loader{opts: opts}
}

// SetMessenger installs the peer messenger used by the agent-chat tool. The
// messenger usually depends on the loader, so it is wired after construction.
func (l *Loader) SetMessenger(m AgentMessenger) { l.opts.Deps.Messenger = m }

// ContextPolicy returns the configured context routing policy.
func (l *Loader) ContextPolicy() core.ContextPolicy { return l.opts.ContextPolicy }

// Load builds the toolset of agent:
//
//  1. implicit built-ins for the agent's archetype (skipped for training agents)
//  2. explicitly listed built-ins, unioned by tool name (first writer wins)
//  3. custom tools, whose required credentials must all resolve
//  4. the knowledge base tool when the agent has one
//
// A missing credential fails the whole load with *core.MissingCredentialError.
// Unknown built-in ids and custom ids without a definition are skipped.
func (l *Loader) Load(runCtx *core.RunContext, agent *core.Agent) (*Set, error) {
	set := NewSet()

	mode := core.ModeDirect
	if runCtx.Team != nil {
		mode = runCtx.Team.Mode
	}

	builtins, customRefs, unknown := Partition(agent.Tools)
	for _, ref := range unknown {
		runCtx.LogWarn("tool.load.unknown_builtin", "agent", agent.Name, "tool", ref)
	}

	if !agent.Training {
		for _, id := range l.opts.Implicit.For(agent.Type, mode) {
			l.addBuiltin(runCtx, set, agent, id, false)
		}
	}
	for _, id := range builtins {
		l.addBuiltin(runCtx, set, agent, id, true)
	}

	customs, err := l.loadCustom(runCtx, agent, append(customRefs, agent.CustomTools...))
	if err != nil {
		return nil, err
	}
	for _, t := range customs {
		if !set.Add(t) {
			runCtx.LogDebug("tool.load.duplicate", "agent", agent.Name, "tool", t.Name())
		}
		set.MarkDeclared(t.Name())
	}

	if agent.HasKnowledgeBase {
		l.addBuiltin(runCtx, set, agent, BuiltinKnowledgeBase, true)
	}

	if l.opts.ContextPolicy == core.PolicyEnforced && agent.Type != core.AgentTypeContextManager && runCtx.Team != nil {
		if _, ok := runCtx.Team.ContextManager(); ok {
			for _, n := range ContextEditTools {
				set.Remove(n)
			}
		}
	}

	runCtx.LogDebug("tool.load.done", "agent", agent.Name, "tools", set.Names())

	return set, nil
}

func (l *Loader) addBuiltin(runCtx *core.RunContext, set *Set, agent *core.Agent, id BuiltinID, declared bool) {
	factory, ok := l.opts.Factories[id]
	if !ok {
		runCtx.LogWarn("tool.load.no_factory", "agent", agent.Name, "tool", id.String())
		return
	}
	for _, t := range factory(l.opts.Deps) {
		if !set.Add(t) {
			runCtx.LogDebug("tool.load.duplicate", "agent", agent.Name, "tool", t.Name())
		}
		if declared {
			set.MarkDeclared(t.Name())
		}
	}
}

func (l *Loader) loadCustom(runCtx *core.RunContext, agent *core.Agent, ids []string) ([]Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	if l.opts.Registry == nil {
		runCtx.LogWarn("tool.load.no_registry", "agent", agent.Name, "custom_tools", ids)
		return nil, nil
	}

	ctx := runCtx.Context

	var defs []*CustomToolDefinition
	seen := map[string]bool{}

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		def, ok, err := l.opts.Registry.GetCustomTool(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load custom tool %q: %w", id, err)
		}
		if !ok {
			runCtx.LogWarn("tool.load.custom_missing", "agent", agent.Name, "custom_tool", id)
			continue
		}
		defs = append(defs, def)
	}

	creds, err := l.resolveCredentials(ctx, runCtx.UserID(), defs)
	if err != nil {
		runCtx.LogError("tool.load.credential_failed", "agent", agent.Name, "error", err.Error())
		return nil, err
	}

	tools := make([]Tool, 0, len(defs))
	for i, def := range defs {
		tools = append(tools, NewCustomTool(def, creds[i], l.opts.Deps.Executor))
	}

	return tools, nil
}

// resolveCredentials looks up every required credential concurrently. The
// first missing or failing lookup cancels the rest.
func (l *Loader) resolveCredentials(ctx context.Context, userID string, defs []*CustomToolDefinition) ([]map[string]string, error) {
	out := make([]map[string]string, len(defs))
	for i := range out {
		out[i] = map[string]string{}
	}

	if l.opts.Credentials == nil {
		for _, def := range defs {
			if len(def.RequiredCredentialNames) > 0 {
				return nil, &core.MissingCredentialError{Tool: def.ToolName(), Credential: def.RequiredCredentialNames[0]}
			}
		}
		return out, nil
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for i, def := range defs {
		for _, credName := range def.RequiredCredentialNames {
			g.Go(func() error {
				val, ok, err := l.opts.Credentials.GetDecryptedCredential(gctx, userID, credName)
				if err != nil {
					return fmt.Errorf("resolve credential %q for tool %q: %w", credName, def.ToolName(), err)
				}
				if !ok || val == "" {
					return &core.MissingCredentialError{Tool: def.ToolName(), Credential: credName}
				}

				mu.Lock()
				out[i][credName] = val
				mu.Unlock()

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

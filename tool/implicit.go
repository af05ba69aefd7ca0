package tool

import "github.com/hupe1980/teammesh/core"

// ImplicitFunc returns the built-ins an archetype receives in a given mode.
type ImplicitFunc func(mode core.OrchestrationMode) []BuiltinID

// ImplicitTable maps each agent archetype to its implicit toolset.
type ImplicitTable map[core.AgentType]ImplicitFunc

func always(ids ...BuiltinID) ImplicitFunc {
	return func(core.OrchestrationMode) []BuiltinID { return ids }
}

// DefaultImplicitTable returns the stock archetype toolsets. Every archetype
// gets the context-set tools; managers additionally get peer messaging
// unless the team runs in direct mode.
func DefaultImplicitTable() ImplicitTable {
	return ImplicitTable{
		core.AgentTypePlain: always(BuiltinContextSets),
		core.AgentTypeManager: func(mode core.OrchestrationMode) []BuiltinID {
			if mode == core.ModeDirect {
				return []BuiltinID{BuiltinContextSets}
			}
			return []BuiltinID{BuiltinContextSets, BuiltinAgentChat}
		},
		core.AgentTypeResearcher:     always(BuiltinContextSets, BuiltinPerplexitySearch, BuiltinWebScrape),
		core.AgentTypeContextManager: always(BuiltinContextSets),
		core.AgentTypeRecords:        always(BuiltinContextSets, BuiltinDatabase, BuiltinFileStore),
		core.AgentTypeToolOperator:   always(BuiltinContextSets),
		core.AgentTypeDynamicTool:    always(BuiltinContextSets, BuiltinDynamicScript),
	}
}

// For returns the implicit built-ins of agent type t in mode.
func (it ImplicitTable) For(t core.AgentType, mode core.OrchestrationMode) []BuiltinID {
	fn, ok := it[t]
	if !ok {
		fn, ok = it[core.AgentTypePlain]
		if !ok {
			return nil
		}
	}
	return fn(mode)
}

// Package core provides the foundational domain types, interfaces and execution
// contexts used by teammesh. It defines the core abstractions for:
//
//   - Agents and Teams (declarative roster configuration)
//   - Context sets (named, visibility-scoped shared text) and the ContextBoard holding them
//   - Conversation state threaded through agent-to-agent hops with an explicit depth ceiling
//   - RunContext / ToolContext (per-turn execution scope handed to tools)
//   - Narrow boundaries for persistence (DataStore), similarity search (Searcher)
//     and credentials (CredentialStore)
//
// The package keeps implementation concerns (model providers, storage backends,
// routing policy) out of scope and exposes small interfaces so backends can be
// swapped without touching orchestration code.
package core

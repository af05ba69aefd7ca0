package tool

import (
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/teammesh/code"
)

// BuiltinID identifies a built-in tool family.
type BuiltinID int

const (
	BuiltinContextSets BuiltinID = iota + 1
	BuiltinDatabase
	BuiltinFileStore
	BuiltinWebFetch
	BuiltinWebScrape
	BuiltinKnowledgeBase
	BuiltinPerplexitySearch
	BuiltinDocumentParse
	BuiltinDynamicScript
	BuiltinOAuthProvider
	BuiltinAgentChat
)

var builtinNames = map[BuiltinID]string{
	BuiltinContextSets:      "context-sets",
	BuiltinDatabase:         "database",
	BuiltinFileStore:        "file-store",
	BuiltinWebFetch:         "web-fetch",
	BuiltinWebScrape:        "web-scrape",
	BuiltinKnowledgeBase:    "knowledge-base",
	BuiltinPerplexitySearch: "perplexity-search",
	BuiltinDocumentParse:    "document-parse",
	BuiltinDynamicScript:    "dynamic-script",
	BuiltinOAuthProvider:    "oauth-provider",
	BuiltinAgentChat:        "agent-chat",
}

// String returns the configuration id.
func (id BuiltinID) String() string {
	if n, ok := builtinNames[id]; ok {
		return n
	}
	return "unknown"
}

// ParseBuiltin resolves a configuration id ("web-fetch", "web_fetch", "Web-Fetch").
func ParseBuiltin(s string) (BuiltinID, bool) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for id, n := range builtinNames {
		if n == norm {
			return id, true
		}
	}
	return 0, false
}

// CustomPrefix marks a tool reference as a custom tool id.
const CustomPrefix = "custom:"

// Partition splits tool references into built-in ids and custom ids. Unknown
// built-in ids are returned separately so the caller can log them.
func Partition(refs []string) (builtins []BuiltinID, customs []string, unknown []string) {
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if id, ok := strings.CutPrefix(ref, CustomPrefix); ok {
			if id = strings.TrimSpace(id); id != "" {
				customs = append(customs, id)
			}
			continue
		}
		if id, ok := ParseBuiltin(ref); ok {
			builtins = append(builtins, id)
			continue
		}
		unknown = append(unknown, ref)
	}
	return builtins, customs, unknown
}

// Deps are the collaborators built-in tools are constructed with. Tools whose
// collaborator is nil still load and report NOT_CONFIGURED when called.
type Deps struct {
	HTTPClient     *http.Client
	HostLimiter    *HostLimiter
	MaxFetchBytes  int64
	WebSearcher    WebSearcher
	Messenger      AgentMessenger
	Executor       code.Executor
	OAuthProviders map[string]OAuthProvider
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if d.HostLimiter == nil {
		d.HostLimiter = NewHostLimiter(1, 2)
	}
	if d.MaxFetchBytes <= 0 {
		d.MaxFetchBytes = 1 << 20
	}
	if d.Executor == nil {
		d.Executor = code.NewExprExecutor()
	}
	return d
}

// Factory builds the tools of one built-in family.
type Factory func(deps Deps) []Tool

// DefaultFactories returns the constructor table of every built-in family.
func DefaultFactories() map[BuiltinID]Factory {
	return map[BuiltinID]Factory{
		BuiltinContextSets:      func(Deps) []Tool { return ContextSetTools() },
		BuiltinDatabase:         func(Deps) []Tool { return []Tool{NewDatabaseTool()} },
		BuiltinFileStore:        func(Deps) []Tool { return []Tool{NewFileStoreTool()} },
		BuiltinWebFetch:         func(d Deps) []Tool { return []Tool{NewWebFetchTool(d.HTTPClient, d.HostLimiter, d.MaxFetchBytes)} },
		BuiltinWebScrape:        func(d Deps) []Tool { return []Tool{NewWebScrapeTool(d.HTTPClient, d.HostLimiter, d.MaxFetchBytes)} },
		BuiltinKnowledgeBase:    func(Deps) []Tool { return []Tool{NewKnowledgeBaseTool()} },
		BuiltinPerplexitySearch: func(d Deps) []Tool { return []Tool{NewWebSearchTool(d.WebSearcher)} },
		BuiltinDocumentParse:    func(Deps) []Tool { return []Tool{NewDocumentParseTool()} },
		BuiltinDynamicScript:    func(d Deps) []Tool { return []Tool{NewScriptTool(d.Executor)} },
		BuiltinOAuthProvider:    func(d Deps) []Tool { return []Tool{NewOAuthTool(d.OAuthProviders)} },
		BuiltinAgentChat:        func(d Deps) []Tool { return []Tool{NewAgentChatTool(d.Messenger)} },
	}
}

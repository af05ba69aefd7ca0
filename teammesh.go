// Package teammesh wires the orchestration core into a ready-to-use Mesh.
//
// A Mesh owns the tool loader, the prompt assembler, the turn executor, the
// agent-to-agent channel and the message router. Unset services fall back to
// in-memory implementations, which is enough for tests and local runs:
//
//	models := model.NewRegistry()
//	models.Register("openai", openai.NewFactory())
//
//	mesh := teammesh.New(models)
//	resp, err := mesh.Route(ctx, router.Request{
//		Message: "Scout:::What changed in the launch plan?",
//		Team:    team,
//		Session: &core.SessionState{UserID: "u1"},
//	})
//
// Open builds a Mesh from a config.Config, including the persistent stores.
package teammesh

import (
	"context"

	"github.com/hupe1980/teammesh/a2a"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/evaluation"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/memory"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/prompt"
	"github.com/hupe1980/teammesh/router"
	"github.com/hupe1980/teammesh/store"
	"github.com/hupe1980/teammesh/tool"
)

// Options configure a Mesh.
type Options struct {
	// Store persists context, diary, records, files and credentials.
	Store core.DataStore
	// Searcher and Indexer back memory and knowledge recall.
	Searcher core.Searcher
	Indexer  core.Indexer
	// Credentials resolves per-user secrets for tools.
	Credentials core.CredentialStore

	CustomTools    tool.CustomRegistry
	WebSearcher    tool.WebSearcher
	OAuthProviders map[string]tool.OAuthProvider

	ContextPolicy  core.ContextPolicy
	MaxSteps       int
	MaxPromptChars int
	MaxDepth       int
	MaxIterations  int
	Throttle       flow.Throttle
	Retry          flow.RetryPolicy

	// Analysis is the model behind pre- and post-analysis. Without it the
	// message is routed unchanged and responses are graded by their
	// completion token.
	Analysis          model.Model
	DisablePreRewrite bool

	Logger logging.Logger
}

// Mesh is the assembled orchestration core. Safe for concurrent use.
type Mesh struct {
	opts    Options
	models  *model.Registry
	channel *a2a.Channel
	router  *router.Router
}

// New assembles a Mesh resolving agent models through models.
func New(models *model.Registry, optFns ...func(o *Options)) *Mesh {
	opts := Options{
		ContextPolicy:  core.PolicyAdvisory,
		MaxSteps:       flow.DefaultMaxSteps,
		MaxPromptChars: flow.DefaultMaxPromptChars,
		MaxDepth:       core.DefaultMaxDepth,
		MaxIterations:  router.DefaultMaxIterations,
		Retry:          flow.DefaultRetryPolicy(),
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.Searcher == nil && opts.Indexer == nil {
		idx := memory.NewInMemoryIndex()
		opts.Searcher, opts.Indexer = idx, idx
	}
	if opts.CustomTools == nil {
		opts.CustomTools = tool.NewStoreRegistry(opts.Store)
	}

	loader := tool.NewLoader(func(o *tool.LoaderOptions) {
		o.Registry = opts.CustomTools
		o.Credentials = opts.Credentials
		o.ContextPolicy = opts.ContextPolicy
		o.Deps.WebSearcher = opts.WebSearcher
		o.Deps.OAuthProviders = opts.OAuthProviders
	})

	executor := flow.New(func(o *flow.Options) {
		o.MaxSteps = opts.MaxSteps
		o.MaxPromptChars = opts.MaxPromptChars
		o.Retry = opts.Retry
	})

	channel := a2a.New(models, func(o *a2a.Options) {
		o.Loader = loader
		o.Assembler = prompt.New(func(o *prompt.Options) {
			o.ContextPolicy = opts.ContextPolicy
			o.Logger = opts.Logger
		})
		o.Retriever = prompt.NewRetriever(opts.Searcher)
		o.Executor = executor
		o.Diary = memory.NewDiary(opts.Store, opts.Indexer)
		o.Throttle = opts.Throttle
	})

	var (
		pre  router.Rewriter
		post evaluation.Evaluator = evaluation.SignalEvaluator{}
	)
	if opts.Analysis != nil {
		post = evaluation.NewPostAnalyzer(opts.Analysis, func(o *evaluation.PostOptions) { o.Retry = opts.Retry })
		if !opts.DisablePreRewrite {
			pre = evaluation.NewPreAnalyzer(opts.Analysis, func(o *evaluation.PreOptions) { o.Retry = opts.Retry })
		}
	}

	r := router.New(channel, func(o *router.Options) {
		o.Pre = pre
		o.Post = post
		o.MaxIterations = opts.MaxIterations
		o.MaxDepth = opts.MaxDepth
		o.Logger = opts.Logger
		o.Services = core.Services{
			Store:       opts.Store,
			Searcher:    opts.Searcher,
			Indexer:     opts.Indexer,
			Credentials: opts.Credentials,
		}
	})

	return &Mesh{opts: opts, models: models, channel: channel, router: r}
}

// Route runs one addressed user message. See router.Router.Route.
func (m *Mesh) Route(ctx context.Context, req router.Request) (*core.AgentUserResponse, error) {
	return m.router.Route(ctx, req)
}

// Cancel aborts an in-flight run.
func (m *Mesh) Cancel(runID string) error { return m.router.Cancel(runID) }

// ActiveRuns returns the number of in-flight runs.
func (m *Mesh) ActiveRuns() int { return m.router.ActiveRuns() }

// Channel exposes the agent-to-agent channel.
func (m *Mesh) Channel() *a2a.Channel { return m.channel }

// Models returns the model registry.
func (m *Mesh) Models() *model.Registry { return m.models }

// Store returns the record store.
func (m *Mesh) Store() core.DataStore { return m.opts.Store }

// Credentials returns the credential store, which may be nil.
func (m *Mesh) Credentials() core.CredentialStore { return m.opts.Credentials }

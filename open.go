package teammesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/credential"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/memory"
	"github.com/hupe1980/teammesh/memory/pgvector"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/model/anthropic"
	"github.com/hupe1980/teammesh/model/gemini"
	"github.com/hupe1980/teammesh/model/openai"
	"github.com/hupe1980/teammesh/store"
	"github.com/hupe1980/teammesh/store/postgres"
	"github.com/hupe1980/teammesh/store/sqlite"
	"github.com/hupe1980/teammesh/tool"
)

// CloseFunc releases what Open acquired.
type CloseFunc func() error

// Open builds a Mesh from cfg: it opens the configured stores, registers the
// model providers and sets up the credential vault and analysis model.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Mesh, CloseFunc, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	fail := func(err error) (*Mesh, CloseFunc, error) {
		_ = closeAll()
		return nil, nil, err
	}

	ds, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	models := NewModelRegistry(cfg.Providers)

	opts := []func(o *Options){func(o *Options) {
		o.Store = ds
		o.Logger = logger
		o.ContextPolicy = cfg.Orchestration.ContextPolicy
		o.MaxSteps = cfg.Orchestration.MaxSteps
		o.MaxPromptChars = cfg.Orchestration.MaxPromptChars
		o.MaxDepth = cfg.Orchestration.MaxDepth
		o.MaxIterations = cfg.Orchestration.MaxIterations
		o.Throttle = &flow.FixedDelay{Delay: cfg.Orchestration.Throttle.Duration}
		o.DisablePreRewrite = cfg.Orchestration.DisablePreRewrite
		o.Retry.MaxRetries = cfg.Orchestration.Retries
		if iv := cfg.Orchestration.RetryInterval.Duration; iv > 0 {
			o.Retry.InitialInterval = iv
		}
	}}

	switch cfg.Vector.Driver {
	case "pgvector":
		p := cfg.Providers["openai"]
		embedder := openai.NewEmbedder(func(o *openai.EmbedderOptions) {
			o.APIKey = p.APIKey
			o.BaseURL = p.BaseURL
			if cfg.Vector.EmbeddingModel != "" {
				o.Model = cfg.Vector.EmbeddingModel
			}
		})

		idx, err := pgvector.Connect(ctx, cfg.Vector.DSN, embedder, func(o *pgvector.Options) {
			o.Dimensions = cfg.Vector.Dimensions
			o.Logger = logger
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { idx.Close(); return nil })

		opts = append(opts, func(o *Options) { o.Searcher, o.Indexer = idx, idx })
	default:
		idx := memory.NewInMemoryIndex()
		opts = append(opts, func(o *Options) { o.Searcher, o.Indexer = idx, idx })
	}

	if pass := cfg.Credentials.Passphrase; pass != "" {
		vault, err := credential.New(ds, pass)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, func(o *Options) { o.Credentials = vault })
	} else {
		logger.Warn("teammesh.credentials.disabled", "reason", "no passphrase configured")
	}

	if p, ok := cfg.Providers["perplexity"]; ok && p.APIKey != "" {
		searcher := tool.NewPerplexitySearcher(p.APIKey, func(o *tool.PerplexityOptions) {
			if p.BaseURL != "" {
				o.BaseURL = p.BaseURL
			}
		})
		opts = append(opts, func(o *Options) { o.WebSearcher = searcher })
	}

	if am := cfg.Orchestration.AnalysisModel; am.Provider != "" {
		m, err := models.Resolve(am)
		if err != nil {
			return fail(fmt.Errorf("analysis model: %w", err))
		}
		opts = append(opts, func(o *Options) { o.Analysis = m })
	}

	logger.Info("teammesh.opened",
		"store", cfg.Store.Driver,
		"vector", cfg.Vector.Driver,
		"providers", models.Providers(),
	)

	return New(models, opts...), closeAll, nil
}

// OpenStore opens the record store selected by cfg.
func OpenStore(ctx context.Context, cfg config.Store) (core.DataStore, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewInMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewModelRegistry registers the openai, anthropic and gemini adapters with
// the given provider settings.
func NewModelRegistry(providers map[string]config.Provider) *model.Registry {
	r := model.NewRegistry()

	oa := providers["openai"]
	r.Register("openai", openai.NewFactory(func(o *openai.Options) {
		o.APIKey = oa.APIKey
		o.BaseURL = oa.BaseURL
	}))

	an := providers["anthropic"]
	r.Register("anthropic", anthropic.NewFactory(func(o *anthropic.Options) {
		o.APIKey = an.APIKey
		o.BaseURL = an.BaseURL
	}))

	ge := providers["gemini"]
	r.Register("gemini", gemini.NewFactory(func(o *gemini.Options) {
		o.APIKey = ge.APIKey
		o.BaseURL = ge.BaseURL
	}))

	return r
}

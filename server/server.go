// Package server exposes the router over HTTP.
//
//	POST   /v1/route             route one "Name:::message" request
//	DELETE /v1/runs/{runID}      cancel an in-flight run
//	GET    /v1/teams             list the loaded teams
//	GET    /v1/teams/{team}      show one team
//	POST   /v1/credentials       store an encrypted credential
//	GET    /healthz              liveness and store health
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/router"
	"github.com/hupe1980/teammesh/session"
)

// Mesh routes messages. *teammesh.Mesh satisfies it.
type Mesh interface {
	Route(ctx context.Context, req router.Request) (*core.AgentUserResponse, error)
	Cancel(runID string) error
}

// CredentialWriter stores credentials. *credential.Vault satisfies it.
type CredentialWriter interface {
	Put(ctx context.Context, userID, name, value string) error
}

// Options configure a Server.
type Options struct {
	// Sessions keeps conversations between requests. Nil disables session_id.
	Sessions    session.Store
	MaxHistory  int
	Credentials CredentialWriter
	CORSOrigins []string
	// Health reports backend health for /healthz. Optional.
	Health func(ctx context.Context) error
	// RouteTimeout bounds a single /v1/route request. Zero means no limit.
	RouteTimeout time.Duration
	Logger       logging.Logger
	Tracer       trace.Tracer
}

// Server is the HTTP API.
type Server struct {
	mesh  Mesh
	teams *config.TeamSet
	opts  Options
}

// New creates a Server.
func New(mesh Mesh, teams *config.TeamSet, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxHistory:  session.DefaultMaxHistory,
		CORSOrigins: []string{"*"},
		Logger:      logging.NoOpLogger{},
		Tracer:      otel.Tracer("github.com/hupe1980/teammesh/server"),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{mesh: mesh, teams: teams, opts: opts}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.trace)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/route", s.route)
		r.Delete("/runs/{runID}", s.cancel)
		r.Get("/teams", s.listTeams)
		r.Get("/teams/{team}", s.getTeam)
		r.Post("/credentials", s.putCredential)
	})

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server.listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s.opts.Logger.Info("server.shutdown", "addr", addr)

	return srv.Shutdown(shutdownCtx)
}

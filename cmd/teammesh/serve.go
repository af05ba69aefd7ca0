package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/teammesh"
	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/server"
	"github.com/hupe1980/teammesh/session"
	"github.com/hupe1980/teammesh/telemetry"
)

var (
	serveAddr    string
	routeTimeout time.Duration
	noWatch      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Teams are loaded from the configured teams directory and reloaded when files
in it change. Press Ctrl+C to shut down gracefully.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().DurationVar(&routeTimeout, "route-timeout", 5*time.Minute, "upper bound for a single route request")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload teams on file changes")
	rootCmd.AddCommand(serveCmd)
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry.shutdown_failed", "error", err)
		}
	}()

	teams, err := config.LoadTeams(cfg.TeamsDir)
	if err != nil {
		return err
	}
	teamSet := config.NewTeamSet(teams...)
	logger.Info("config.teams.loaded", "dir", cfg.TeamsDir, "count", len(teams))

	mesh, closeMesh, err := teammesh.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeMesh(); err != nil {
			logger.Warn("teammesh.close_failed", "error", err)
		}
	}()

	srvOpts := func(o *server.Options) {
		o.Sessions = session.NewRecordStore(mesh.Store())
		o.CORSOrigins = cfg.Server.CORSOrigins
		o.RouteTimeout = routeTimeout
		o.Logger = logger
		if w, ok := mesh.Credentials().(server.CredentialWriter); ok {
			o.Credentials = w
		}
		if hc, ok := mesh.Store().(healthChecker); ok {
			o.Health = hc.HealthCheck
		}
	}

	srv := server.New(mesh, teamSet, srvOpts)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.Addr) })

	if !noWatch {
		watcher, err := config.NewWatcher(cfg.TeamsDir, teamSet, func(o *config.WatcherOptions) {
			o.Logger = logger
		})
		if err != nil {
			return err
		}
		defer watcher.Close()

		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("team watcher: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

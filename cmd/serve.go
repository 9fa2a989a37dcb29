package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/config"
	"github.com/nextlevelbuilder/roomcast/internal/dispatch"
	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/gateway"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	pgstore "github.com/nextlevelbuilder/roomcast/internal/store/pg"
	sqlitestore "github.com/nextlevelbuilder/roomcast/internal/store/sqlite"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
	"github.com/nextlevelbuilder/roomcast/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coordination server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		slog.Warn("tracing setup failed", "error", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(sctx)
		}()
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("store setup failed", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	msgBus := bus.NewMessageBus()
	registry := orchestrator.NewRegistry(cfg.Rooms)
	sup := supervisor.New()

	eng := engine.NewOpenAIEngine(engine.OpenAIConfig{
		BaseURL:     cfg.Engine.BaseURL,
		APIKey:      cfg.Engine.APIKey,
		Model:       cfg.Engine.Model,
		MaxTokens:   cfg.Engine.MaxTokens,
		Temperature: cfg.Engine.Temperature,
	})

	server := gateway.NewServer(cfg, msgBus, msgBus, *stores, registry, sup)
	dispatcher := &dispatch.Dispatcher{
		Inbound:     msgBus,
		Events:      msgBus,
		Registry:    registry,
		Engine:      eng,
		Supervisor:  sup,
		Messages:    stores.Messages,
		TurnTimeout: time.Duration(cfg.Engine.TurnTimeoutSeconds) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		// Hot-reload applies to the defaults used by future room sessions.
		return config.Watch(gctx, cfgPath, func(next *config.Config) {
			registry.SetDefaults(next.Rooms)
		})
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openStores picks the backing store: Postgres when a DSN is configured,
// a local SQLite file otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.Database.PostgresDSN != "" {
		return pgstore.NewPGStores(cfg.Database.PostgresDSN)
	}
	return sqlitestore.NewSQLiteStores(config.ExpandHome(cfg.Database.SQLitePath))
}

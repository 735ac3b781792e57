package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/jobs"
	"github.com/sentinelops/sentinel/internal/server"
	"github.com/sentinelops/sentinel/internal/services"
	"github.com/sentinelops/sentinel/internal/services/explain"
	"github.com/sentinelops/sentinel/internal/services/inventory"
	"github.com/sentinelops/sentinel/internal/services/model"
	"github.com/sentinelops/sentinel/internal/services/notifier"
	"github.com/sentinelops/sentinel/internal/services/scanner"
	"github.com/sentinelops/sentinel/internal/storage"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sentinel server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the server configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg.Server.LogLevel)
	slog.Info("starting sentinel server",
		"grpc_listen", cfg.Server.GRPCListen,
		"services", cfg.ActiveServices())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Datastore: connect, wait through the gate, then migrate.
	store, err := storage.Connect(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("connect datastore: %w", err)
	}
	defer store.Close()

	if err := store.WaitReady(ctx, cfg.Storage); err != nil {
		return fmt.Errorf("datastore not ready: %w", err)
	}
	if err := storage.Migrate(cfg.Storage.Connection); err != nil {
		return fmt.Errorf("migrate datastore: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	runner := jobs.NewRunner(
		jobs.WithMetrics(jobs.NewMetrics("sentinel", reg)),
	)

	registry := services.NewRegistry()
	for _, name := range cfg.ActiveServices() {
		svc, err := buildService(name, cfg, store, runner)
		if err != nil {
			return err
		}
		if err := registry.Add(svc); err != nil {
			return err
		}
	}

	if err := registry.InitializeAll(ctx); err != nil {
		return err
	}
	if err := registry.StartAll(ctx); err != nil {
		return err
	}

	dispatcher := server.NewServer(cfg.Server.GRPCListen, registry, store, server.NewMetrics("sentinel", reg))
	if err := dispatcher.Start(ctx); err != nil {
		registry.StopAll(context.Background())
		return fmt.Errorf("start dispatcher: %w", err)
	}

	debug := server.NewDebugServer(cfg.Server.HTTPListen, store, reg)
	debug.Start()

	slog.Info("sentinel server ready", "grpc", dispatcher.Addr(), "http", cfg.Server.HTTPListen)

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Tear down in reverse start order.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := debug.Stop(shutdownCtx); err != nil {
		slog.Warn("debug server shutdown failed", "error", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		slog.Warn("dispatcher shutdown failed", "error", err)
	}
	registry.StopAll(shutdownCtx)
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Warn("job runner shutdown failed", "error", err)
	}

	slog.Info("sentinel server stopped")
	return nil
}

func buildService(name string, cfg *config.Config, store *storage.Store, runner *jobs.Runner) (services.Service, error) {
	switch name {
	case "inventory":
		return inventory.New(cfg.Inventory, cfg.API, store, runner), nil
	case "model":
		return model.New(store, runner), nil
	case "scanner":
		return scanner.New(cfg.Scanner, store, runner), nil
	case "notifier":
		return notifier.New(cfg.Notifier, store), nil
	case "explain":
		return explain.New(cfg.Explain, store), nil
	default:
		return nil, fmt.Errorf("unknown service %q", name)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
}

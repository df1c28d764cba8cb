// Package main implements the entry point for the DataForge engine.
// DataForge is a data pipeline orchestration core: it registers
// heterogeneous data sources, runs streaming and batch pipelines over them,
// and exposes metrics and health over an admin HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/dataforge/config"
	"github.com/c360/dataforge/event"
	"github.com/c360/dataforge/health"
	"github.com/c360/dataforge/metric"
	"github.com/c360/dataforge/pipeline"
	"github.com/c360/dataforge/source"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "dataforge"
)

// sourceHealthInterval is the cadence of the background probe loop.
const sourceHealthInterval = 30 * time.Second

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting DataForge (data pipeline orchestration)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfiguration(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core infrastructure
	metrics := metric.NewRegistry()
	monitor := health.NewMonitor()
	bus := event.NewBus(logger, event.WithMetrics(metrics.Core))
	defer bus.Close()

	registry := source.NewRegistry(bus, logger,
		source.WithMetrics(metrics.Core),
		source.WithHealthMonitor(monitor))
	manager := pipeline.NewManager(registry, bus, logger,
		pipeline.WithMetrics(metrics.Core))

	if err := bootstrap(ctx, cfg, registry, manager); err != nil {
		return err
	}

	go sourceHealthLoop(ctx, registry)

	srv := newAdminServer(cfg.HTTP, metrics, monitor, registry, manager)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("admin server listening", "addr", cfg.HTTP.Addr)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin server shutdown", "error", err)
	}
	manager.Close(shutdownCtx)
	slog.Info("shutdown complete")
	return nil
}

// loadConfiguration loads the config file, falling back to built-in defaults
// when no path is given.
func loadConfiguration(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// bootstrap registers configured sources and creates configured pipelines.
func bootstrap(ctx context.Context, cfg *config.Config, registry *source.Registry, manager *pipeline.Manager) error {
	for _, sc := range cfg.Sources {
		if _, err := registry.Register(ctx, sc); err != nil {
			return fmt.Errorf("register source %s: %w", sc.ID, err)
		}
	}

	for _, pc := range cfg.Pipelines {
		view, err := manager.CreatePipeline(ctx, pipeline.Config{
			Name:               pc.Name,
			Mode:               pc.Mode,
			Sources:            pc.Sources,
			Sinks:              pc.Sinks,
			BatchSize:          pc.BatchSize,
			Parallelism:        pc.Parallelism,
			RetryPolicy:        pc.RetryPolicy,
			OnError:            pc.OnError,
			CheckpointInterval: pc.CheckpointInterval,
		})
		if err != nil {
			return fmt.Errorf("create pipeline %s: %w", pc.Name, err)
		}
		if pc.AutoStart {
			if err := manager.StartPipeline(ctx, view.ID); err != nil {
				return fmt.Errorf("start pipeline %s: %w", pc.Name, err)
			}
		}
	}
	return nil
}

// sourceHealthLoop keeps source statuses and the health monitor fresh.
func sourceHealthLoop(ctx context.Context, registry *source.Registry) {
	ticker := time.NewTicker(sourceHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, src := range registry.List("") {
				registry.CheckHealth(ctx, src.ID)
			}
		}
	}
}

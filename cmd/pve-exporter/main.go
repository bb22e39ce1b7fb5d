package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/mittelab/prometheus-pve-exporter/internal/collector"
	"github.com/mittelab/prometheus-pve-exporter/internal/config"
	"github.com/mittelab/prometheus-pve-exporter/internal/errors"
	"github.com/mittelab/prometheus-pve-exporter/internal/exporter"
	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
	"github.com/mittelab/prometheus-pve-exporter/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// 1. Load and validate config.
	cfg := config.Load()
	cfg.ExporterVersion = version
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	modules, err := config.LoadModules(cfg.ConfigFile)
	if err != nil {
		slog.Error("failed to load modules", "path", cfg.ConfigFile, "error", err)
		os.Exit(1)
	}
	cfg.Modules = modules

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Create context with signal handling.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	slog.Info("pve-exporter starting",
		"version", cfg.ExporterVersion,
		"listen_address", cfg.ListenAddress,
		"listen_port", cfg.ListenPort,
		"modules", len(cfg.Modules),
		"scrape_timeout", cfg.ScrapeTimeout,
	)

	// 3. Create shared infrastructure.
	metrics := observability.NewMetrics()
	errCollector := errors.NewErrorCollector(errors.RealClock{}, cfg.ErrorTTL)
	registry := collector.NewDefaultRegistry(metrics)
	exp := exporter.NewExporter(&cfg, registry, errCollector, metrics)

	// 4. Start HTTP server.
	srv := server.NewServer(cfg.ListenAddress, cfg.ListenPort, cfg.ScrapeTimeout, metrics, exp, exp, errCollector, cfg.DebugEndpoints)
	if err := srv.Start(); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	slog.Info("listening", "address", srv.Addr())

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// 5. Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("pve-exporter stopped")
}

// SAFV - Financial simulation, valuation and anonymized benchmarking.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/safv/internal/api"
	"github.com/opensource-finance/safv/internal/benchmark"
	"github.com/opensource-finance/safv/internal/bus"
	"github.com/opensource-finance/safv/internal/cache"
	"github.com/opensource-finance/safv/internal/config"
	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/logging"
	"github.com/opensource-finance/safv/internal/repository"
	"github.com/opensource-finance/safv/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("starting safv",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize async ingestion worker
	var ingestWorker *worker.Worker
	if cfg.Worker.Enabled {
		ingestWorker = worker.NewWorker(busImpl, benchmark.NewService(repo))
		if err := ingestWorker.Start(worker.ConfigFrom(cfg.Worker)); err != nil {
			slog.Error("failed to start ingestion worker", "error", err)
		} else {
			slog.Info("ingestion worker started",
				"tenant_count", len(cfg.Worker.TenantIDs),
				"jobs_per_second", cfg.Worker.JobsPerSecond,
			)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, api.Options{
		Version:   Version,
		Financial: cfg.Financial,
		RateLimit: cfg.RateLimit,
		IndexTTL:  cfg.Cache.IndexTTL,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("safv is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before draining the worker
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if ingestWorker != nil {
		if err := ingestWorker.Stop(); err != nil {
			slog.Error("failed to stop ingestion worker", "error", err)
		}
		stats := ingestWorker.GetStats()
		slog.Info("ingestion worker stopped", "processed", stats.Processed, "failed", stats.Failed)
	}

	slog.Info("safv shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SAFV - Simulation, Valuation & Benchmarking")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints (tenant routes under /t/{tenantID}):")
	fmt.Println("    POST /simulations                                 - Simulate payment plans")
	fmt.Println("    POST /valuations/snapshots/{id}/results           - Value a cashflow snapshot")
	fmt.Println("    POST /benchmarking/batches/{id}/ingest            - Ingest a CSV/XLSX dataset")
	fmt.Println("    GET  /benchmarking/batches/{id}/aggregations      - List anonymized aggregations")
	fmt.Println("    GET  /indexes/{code}/values                       - List index values")
	fmt.Println("    POST /indexes/{code}/values                       - Upsert index values")
	fmt.Println("    GET  /settings/financial                          - Tenant financial settings")
	fmt.Println("    PUT  /settings/financial                          - Update financial settings")
	fmt.Println("    GET  /plan-templates                              - List plan templates")
	fmt.Println("    POST /plan-templates                              - Create a plan template")
	fmt.Println("    GET  /health                                      - Health check")
	fmt.Println()
}

// Kestrel - Structural fraud detection over transaction graphs.
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/triage"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	input := flag.String("input", "", "analyze one dataset file (.csv or .json) and exit")
	jsonOut := flag.Bool("json", false, "emit the one-shot report as JSON instead of text")
	flag.Parse()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for distributed mode via environment
	if os.Getenv("KESTREL_MODE") == "distributed" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}

	slog.Info("configuration loaded",
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

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

	// Initialize Detection Engine
	eng, err := engine.New(cfg.Detection,
		engine.WithCache(cacheImpl),
		engine.WithBus(busImpl),
	)
	if err != nil {
		slog.Error("failed to initialize detection engine", "error", err)
		os.Exit(1)
	}

	// One-shot mode: analyze a file, print the report, exit.
	if *input != "" {
		if err := analyzeFile(eng, *input, *jsonOut); err != nil {
			slog.Error("analysis failed", "input", *input, "error", err)
			os.Exit(1)
		}
		return
	}

	// Initialize Triage Engine with builtin rules
	tri, err := triage.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize triage engine", "error", err)
		os.Exit(1)
	}
	if err := tri.LoadRules(triage.BuiltinRules()); err != nil {
		slog.Error("failed to load builtin triage rules", "error", err)
		os.Exit(1)
	}
	slog.Info("triage engine initialized", "rules_count", tri.RulesCount())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Server
	srv := api.NewServer(cfg.Server, eng, tri, cacheImpl, busImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// analyzeFile runs the engine over one dataset file and writes the
// report to stdout.
func analyzeFile(eng *engine.Engine, path string, jsonOut bool) error {
	txs, err := ingest.ReadFile(path)
	if err != nil {
		return err
	}

	g, err := graph.Build(txs, graph.Filter{})
	if err != nil {
		return err
	}

	result, err := eng.Run(context.Background(), g)
	if err != nil {
		return err
	}

	if jsonOut {
		return report.WriteJSON(os.Stdout, result)
	}
	return report.WriteText(os.Stdout, result)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║      Graph Fraud Detection Engine         ║")
	fmt.Println("  ║      Sees the shape of the money.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /datasets              - Upload a transaction dataset")
	fmt.Println("    POST /datasets/{id}/analyze - Run detection over a dataset")
	fmt.Println("    GET  /runs/{id}             - Get run result by ID")
	fmt.Println("    GET  /runs/{id}/report      - Render run as text report")
	fmt.Println("    GET  /runs/{id}/records     - Flat finding records")
	fmt.Println("    POST /runs/{id}/triage      - Triage run findings")
	fmt.Println("    GET  /rules                 - List triage rules")
	fmt.Println("    POST /rules                 - Create a triage rule")
	fmt.Println("    POST /rules/reload          - Restore builtin rules")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}

// Kestrel - Accurate microfinance dashboards from inconsistent backends.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmfb/kestrel/internal/alerts"
	"github.com/openmfb/kestrel/internal/api"
	"github.com/openmfb/kestrel/internal/backend"
	"github.com/openmfb/kestrel/internal/bus"
	"github.com/openmfb/kestrel/internal/cache"
	"github.com/openmfb/kestrel/internal/dashboard"
	"github.com/openmfb/kestrel/internal/directory"
	"github.com/openmfb/kestrel/internal/domain"
	"github.com/openmfb/kestrel/internal/performance"
	"github.com/openmfb/kestrel/internal/repository"
	"github.com/openmfb/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"backend", cfg.Backend.BaseURL,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	store, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// One loader shared by every read-through consumer, so a single
	// clear invalidates the dashboard and the directory together.
	loader := cache.NewLoader(store, cfg.Cache.DefaultTTL)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Backend client and domain services
	client := backend.NewClient(cfg.Backend)
	directorySvc := directory.NewService(client, loader)
	performanceSvc := performance.NewService(client)
	aggregator := dashboard.NewAggregator(client, loader, performanceSvc, busImpl)

	// Initialize Alert Engine
	engine, err := alerts.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize alert engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("alert engine initialized", "rules_count", engine.RulesCount())

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, repo, engine, aggregator)

	workerCfg := worker.Config{}
	if cfg.Refresh.Enabled {
		workerCfg.WarmupInterval = cfg.Refresh.Interval
	}

	if err := asyncWorker.Start(workerCfg); err != nil {
		slog.Error("failed to start async worker", "error", err)
	} else {
		slog.Info("async worker started", "warmup_interval", workerCfg.WarmupInterval)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, aggregator, directorySvc, repo, store, engine, Version)

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

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// setupLogging configures the default slog logger from config.
func setupLogging(cfg domain.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadRulesFromDatabase loads alert rules from the database into the
// engine. All rules are configured via POST /alert-rules - no hardcoded
// defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *alerts.Engine) error {
	dbRules, err := repo.ListAlertRules(ctx)
	if err != nil {
		slog.Warn("failed to list alert rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading alert rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no alert rules in database - configure via POST /alert-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +------------------------------------------+")
	fmt.Println("  |                 KESTREL                  |")
	fmt.Println("  |    Microfinance Dashboard Aggregator     |")
	fmt.Println("  |       One truth for every number.        |")
	fmt.Println("  +------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Backend:  %s\n", cfg.Backend.BaseURL)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /dashboard/kpis               - Consistent KPI snapshot")
	fmt.Println("    GET  /dashboard/branch-performance - Ranked branch metrics")
	fmt.Println("    DELETE /cache                      - Invalidate all caches")
	fmt.Println("    GET  /users                        - Filtered, paginated users")
	fmt.Println("    GET  /users/all                    - Filtered users, no paging")
	fmt.Println("    GET  /snapshots                    - Snapshot history")
	fmt.Println("    GET  /alert-rules                  - List alert rules")
	fmt.Println("    POST /alert-rules                  - Create an alert rule")
	fmt.Println("    POST /alert-rules/reload           - Hot-reload rules")
	fmt.Println("    GET  /alert-events                 - Fired alerts")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println()
}

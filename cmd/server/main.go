// @title           AIBOM Registry API
// @version         1.0.0
// @description     Regulatory registry for AI bill-of-materials documents: review workflow, append-only ledgers and a hash-chained event log
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT, OIDC ID token or API key. Use 'Bearer {token}'."
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and pprof are served on dedicated side-channel ports, not on the API listener. Configure them with AIBOM_TELEMETRY_METRICS_PROMETHEUS_PORT and AIBOM_TELEMETRY_PROFILING_PORT.

// Package main is the entry point for the registry server binary. It
// dispatches four subcommands (serve, migrate, version and verify-snapshot)
// with a plain switch on os.Args. With the postgres store, serve applies
// migrations on startup so a fresh deployment needs no separate step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the internal profiling port, never on the Gin router
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aibom-registry/aibom-registry/internal/api"
	"github.com/aibom-registry/aibom-registry/internal/archive"
	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db"
	"github.com/aibom-registry/aibom-registry/internal/jobs"
	"github.com/aibom-registry/aibom-registry/internal/storage"
	"github.com/aibom-registry/aibom-registry/internal/telemetry"

	// Archive backends register themselves with the storage factory
	_ "github.com/aibom-registry/aibom-registry/internal/storage/azure"
	_ "github.com/aibom-registry/aibom-registry/internal/storage/gcs"
	_ "github.com/aibom-registry/aibom-registry/internal/storage/local"
	_ "github.com/aibom-registry/aibom-registry/internal/storage/s3"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("AIBOM Registry v%s\n", version)
		return nil
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "verify-snapshot":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s verify-snapshot <key>", os.Args[0])
		}
		return verifySnapshot(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version, verify-snapshot", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	logger := slog.Default()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Registry.WatchBindings {
		if _, err := config.Watch(configPath, logger, config.ReloadBindings(cfg, svc.Resolver, logger)); err != nil {
			logger.Warn("role binding reload disabled", "error", err)
		}
	}

	var exporterDone <-chan struct{}
	if svc.Exporter != nil && cfg.Archive.Enabled {
		exporterDone = svc.Exporter.Start(ctx)
	}

	startSideChannels(cfg, logger)

	api.Version = version
	router := api.NewRouter(svc.Dependencies(cfg, logger))

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"store", cfg.Registry.Store,
			"principal", svc.Resolver.Principal(),
			"tls", cfg.Security.TLS.Enabled,
		)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs before the stores they read from are closed
	stop()
	if exporterDone != nil {
		<-exporterDone
	}

	logger.Info("server stopped gracefully")
	return nil
}

// startSideChannels serves Prometheus metrics and pprof on their own ports so
// neither is reachable through the public API ingress.
func startSideChannels(cfg *config.Config, logger *slog.Logger) {
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			logger.Info("starting pprof server", "addr", pprofAddr)
			srv := &http.Server{ // #nosec G112 -- internal-only pprof port
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("pprof server error", "error", err)
			}
		}()
	}
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Registry.Store != config.StorePostgres {
		return fmt.Errorf("migrations only apply to the postgres store (configured: %s)", cfg.Registry.Store)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction) // #nosec G706 -- operator-supplied CLI argument

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", v, dirty)
	return nil
}

// verifySnapshot loads a snapshot from the configured archive backend and
// checks it offline. A failed check is returned as an error so the process
// exits non-zero.
func verifySnapshot(cfg *config.Config, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := storage.NewStorage(&cfg.Archive)
	if err != nil {
		return fmt.Errorf("failed to open archive backend: %w", err)
	}

	snap, err := jobs.LoadSnapshot(ctx, store, key)
	if err != nil {
		return err
	}

	n, err := archive.Verify(snap)
	if err != nil {
		return fmt.Errorf("snapshot %s is invalid: %w", key, err)
	}

	fmt.Printf("Snapshot %s is valid\n", key)
	fmt.Printf("  format:    %s\n", snap.FormatVersion)
	fmt.Printf("  events:    %d\n", n)
	fmt.Printf("  sequence:  %d\n", snap.State.LastSequence)
	fmt.Printf("  head hash: %s\n", snap.State.HeadHash)
	fmt.Printf("  records:   %d\n", len(snap.State.Records))
	return nil
}

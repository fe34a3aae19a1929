package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/aibom-registry/aibom-registry/internal/api"
	"github.com/aibom-registry/aibom-registry/internal/audit"
	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/auth/oidc"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/db/repositories"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/jobs"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/redis"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/registry/badgerstore"
	"github.com/aibom-registry/aibom-registry/internal/storage"
	"github.com/aibom-registry/aibom-registry/internal/telemetry"
)

// services holds the long-lived components built at startup
type services struct {
	Registry *registry.Registry
	Resolver *registry.Resolver
	Bus      *events.Bus
	Store    registry.Store
	Keys     auth.KeyStore
	Verifier *oidc.Verifier
	Redis    *redis.Client
	Limiter  middleware.Limiter
	AuditLog *repositories.AuditRepository
	Shipper  *audit.MultiShipper
	Exporter *jobs.SnapshotExporter

	closers []func() error
}

// Close releases everything in reverse order of construction
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("error during shutdown", "error", err)
		}
	}
}

func (s *services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Dependencies converts the services into router dependencies. Optional
// components are only assigned when present so the router never receives a
// typed nil inside an interface.
func (s *services) Dependencies(cfg *config.Config, logger *slog.Logger) api.Dependencies {
	deps := api.Dependencies{
		Config:   cfg,
		Registry: s.Registry,
		Keys:     s.Keys,
		Limiter:  s.Limiter,
		Logger:   logger,
	}
	if s.Verifier != nil {
		deps.Verifier = s.Verifier
	}
	if s.Redis != nil {
		deps.Redis = s.Redis
	}
	if s.AuditLog != nil {
		deps.AuditLog = s.AuditLog
	}
	if s.Shipper != nil && s.Shipper.Len() > 0 {
		deps.Shipper = s.Shipper
	}
	if s.Exporter != nil {
		deps.Snapshots = s.Exporter
	}
	return deps
}

// buildServices wires every component. On error it releases whatever was
// already opened and returns a nil *services.
func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *services, err error) {
	svc := &services{}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	svc.Resolver, err = cfg.Registry.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("invalid registry roles: %w", err)
	}

	var database *sql.DB
	switch cfg.Registry.Store {
	case config.StorePostgres:
		database, err = openDatabase(cfg)
		if err != nil {
			return nil, err
		}
		svc.onClose(database.Close)
		svc.Store = repositories.NewRegistryStore(sqlx.NewDb(database, "postgres"))
		svc.Keys = repositories.NewAPIKeyRepository(database)
		svc.AuditLog = repositories.NewAuditRepository(database)
	case config.StoreBadger:
		bs, err := badgerstore.Open(
			badgerstore.WithDataDir(cfg.Registry.Badger.Dir),
			badgerstore.WithGCInterval(cfg.Registry.Badger.GCInterval),
			badgerstore.WithLogger(logger.With("component", "badger")),
		)
		if err != nil {
			return nil, err
		}
		svc.onClose(bs.Close)
		svc.Store = bs
	default:
		svc.Store = registry.NewMemoryStore()
	}
	if svc.Keys == nil {
		svc.Keys = staticKeyStore(cfg.Auth.APIKeys)
	}
	logger.Info("registry store ready", "store", cfg.Registry.Store)

	if cfg.Auth.OIDC.Enabled {
		svc.Verifier, err = oidc.NewVerifier(ctx, &cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise OIDC verifier: %w", err)
		}
		logger.Info("OIDC verification enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	svc.Redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if svc.Redis != nil {
		svc.onClose(svc.Redis.Close)
	}

	if rl := cfg.Security.RateLimiting; rl.Enabled {
		if rl.Redis && svc.Redis != nil {
			svc.Limiter = middleware.NewRedisLimiter(svc.Redis.Client, rl.RequestsPerMinute, rl.Burst)
		} else {
			svc.Limiter = middleware.NewMemoryLimiter(ctx, rl.RequestsPerMinute, rl.Burst)
		}
		logger.Info("rate limiting enabled", "backend", svc.Limiter.Backend(), "per_minute", rl.RequestsPerMinute)
	}

	if cfg.Audit.Enabled {
		svc.Shipper, err = audit.NewMultiShipper(cfg.Audit.Shippers, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise audit shippers: %w", err)
		}
		svc.onClose(svc.Shipper.Close)
	}

	svc.Bus = events.NewBus(logger)
	svc.onClose(func() error { svc.Bus.Stop(); return nil })
	if err := subscribeSinks(svc, cfg, logger); err != nil {
		return nil, err
	}

	svc.Registry = registry.New(svc.Store, svc.Resolver,
		registry.WithBus(svc.Bus),
		registry.WithLogger(logger),
	)

	// The archive backend is needed for on-demand exports even when the
	// scheduled job is disabled
	archiveStore, err := storage.NewStorage(&cfg.Archive)
	if err != nil {
		logger.Warn("snapshot archive unavailable", "backend", cfg.Archive.Backend, "error", err)
	} else {
		svc.Exporter = jobs.NewSnapshotExporter(svc.Registry, archiveStore, &cfg.Archive, svc.Resolver.Principal(), logger)
	}

	return svc, nil
}

// openDatabase connects to Postgres, applies pending migrations and starts
// the pool statistics collector
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database)

	if err := db.RunMigrations(database, "up"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}
	return database, nil
}

// staticKeyStore seeds an in-memory key store with the pre-hashed keys
// declared in configuration
func staticKeyStore(cfg config.APIKeyConfig) *auth.MemoryKeyStore {
	seed := make([]*models.APIKey, 0, len(cfg.Static))
	for _, k := range cfg.Static {
		seed = append(seed, &models.APIKey{
			Identity:  registry.NormalizeIdentity(k.Identity),
			Name:      k.Name,
			KeyHash:   k.KeyHash,
			KeyPrefix: k.KeyPrefix,
		})
	}
	return auth.NewMemoryKeyStore(seed...)
}

// subscribeSinks attaches the external event sinks to the bus
func subscribeSinks(svc *services, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Events.Redis.Enabled {
		if svc.Redis == nil {
			return errors.New("events.redis requires redis.url")
		}
		svc.Bus.Subscribe("redis", events.NewRedisSink(svc.Redis.Client, cfg.Events.Redis.Channel))
		logger.Info("publishing events to redis", "channel", cfg.Events.Redis.Channel)
	}

	if kc := cfg.Events.Kafka; kc.Enabled {
		sink, err := events.NewKafkaSink(kc.Brokers, kc.Topic, kc.ClientID)
		if err != nil {
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		svc.Bus.Subscribe("kafka", sink)
		logger.Info("producing events to kafka", "topic", kc.Topic, "brokers", kc.Brokers)
	}

	if svc.Shipper != nil && svc.Shipper.Len() > 0 {
		svc.Bus.Subscribe("audit", audit.NewEventSubscriber(svc.Shipper))
	}
	return nil
}

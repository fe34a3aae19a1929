// Package api assembles the Gin engine for the registry server. NewRouter wires
// the global middleware, the unauthenticated system endpoints and the versioned
// /api/v1 surface. All state lives in the Dependencies passed in by cmd/server,
// which keeps the router free of connection setup and easy to build in tests.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api/account"
	"github.com/aibom-registry/aibom-registry/internal/api/admin"
	"github.com/aibom-registry/aibom-registry/internal/api/eventlog"
	"github.com/aibom-registry/aibom-registry/internal/api/records"
	"github.com/aibom-registry/aibom-registry/internal/audit"
	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Version is reported by GET /version. cmd/server overrides it at link time.
var Version = "0.1.0"

// HealthChecker is an optional dependency probed by the readiness endpoint
type HealthChecker interface {
	Health(ctx context.Context) error
}

// AuditLog persists audit rows and reads them back for the admin API.
// *repositories.AuditRepository satisfies it.
type AuditLog interface {
	middleware.AuditWriter
	admin.AuditLister
}

// Dependencies holds everything the router serves. Registry and Config are
// required; every other field is optional and disables its routes or checks
// when nil.
type Dependencies struct {
	Config   *config.Config
	Registry *registry.Registry

	Keys      auth.KeyStore
	Verifier  middleware.IdentityVerifier
	Limiter   middleware.Limiter
	Redis     HealthChecker
	AuditLog  AuditLog
	Shipper   audit.Shipper
	Snapshots admin.SnapshotService
	Logger    *slog.Logger
}

// NewRouter creates the Gin engine
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.SecurityHeaders(cfg.Security.TLS.Enabled))
	router.Use(middleware.CORS(cfg.Security.CORS))

	store := deps.Registry.Store()
	router.GET("/health", healthCheckHandler(store))
	router.GET("/ready", readinessHandler(store, deps.Redis))
	router.GET("/version", versionHandler())

	var keys auth.KeyStore
	if cfg.Auth.APIKeys.Enabled {
		keys = deps.Keys
	}
	authn := middleware.NewAuthenticator(keys, deps.Verifier, logger)
	resolver := deps.Registry.Resolver()

	v1 := router.Group("/api/v1")
	if cfg.Audit.Enabled {
		// Audit runs its work after c.Next(), so it sees the identity set below
		if mw := auditMiddleware(deps, cfg.Audit); mw != nil {
			v1.Use(mw)
		}
	}
	v1.Use(authn.Optional())
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimit(deps.Limiter))
	}

	// Records and ledgers: reads are public, writes need a caller
	rec := records.NewHandlers(deps.Registry)
	recordsGroup := v1.Group("/records")
	{
		recordsGroup.GET("", rec.List)
		recordsGroup.GET("/:modelId", rec.Get)
		recordsGroup.GET("/:modelId/submissions", rec.Submissions)
		recordsGroup.GET("/:modelId/submissions/latest", rec.LatestSubmission)
		recordsGroup.GET("/:modelId/submissions/approved", rec.ApprovedSubmissions)
		recordsGroup.GET("/:modelId/decisions", rec.Decisions)
		recordsGroup.GET("/:modelId/vulnerabilities", rec.Vulnerabilities)
		recordsGroup.GET("/:modelId/vulnerabilities/:index", rec.Vulnerability)
		recordsGroup.GET("/:modelId/advisories", rec.Advisories)
		recordsGroup.GET("/:modelId/advisories/:index", rec.Advisory)

		writes := recordsGroup.Group("", middleware.RequireIdentity())
		writes.POST("", rec.Register)
		writes.POST("/:modelId/submissions", rec.SubmitForReview)
		writes.POST("/:modelId/decisions", rec.Decide)
		writes.POST("/:modelId/vulnerabilities", rec.ReportVulnerability)
		writes.POST("/:modelId/advisories", rec.RecordAdvisory)
	}

	// Event log
	var feed eventlog.Feed
	if bus := deps.Registry.Bus(); bus != nil {
		feed = bus
	}
	ev := eventlog.NewHandlers(deps.Registry, feed)
	eventsGroup := v1.Group("/events")
	{
		eventsGroup.GET("", ev.List)
		eventsGroup.GET("/head", ev.Head)
		eventsGroup.GET("/verify", ev.Verify)
		if feed != nil {
			eventsGroup.GET("/stream", ev.Stream)
		}
	}

	// Caller views
	acct := account.NewHandlers(deps.Registry)
	v1.GET("/whoami", middleware.RequireIdentity(), acct.WhoAmI)
	v1.GET("/me/records", middleware.RequireIdentity(), acct.MyRecords)

	// Administration
	adminGroup := v1.Group("/admin",
		middleware.RequireIdentity(),
		middleware.RequirePermission(resolver, registry.PermManageRoles),
	)
	{
		adminGroup.GET("/roles", admin.NewRoleHandlers(resolver).ListRolesHandler())

		if keys != nil {
			kh := admin.NewAPIKeyHandlers(keys, cfg.Auth.APIKeys)
			adminGroup.GET("/api-keys", kh.ListAPIKeysHandler())
			adminGroup.POST("/api-keys", kh.CreateAPIKeyHandler())
			adminGroup.DELETE("/api-keys/:id", kh.RevokeAPIKeyHandler())
		}

		if deps.Snapshots != nil {
			sh := admin.NewSnapshotHandlers(deps.Snapshots)
			adminGroup.GET("/snapshots", sh.ListSnapshotsHandler())
			adminGroup.POST("/snapshots", sh.ExportSnapshotHandler())
			adminGroup.GET("/snapshots/verify", sh.VerifySnapshotHandler())
		}

		if deps.AuditLog != nil {
			adminGroup.GET("/audit-logs", admin.NewAuditHandlers(deps.AuditLog).ListAuditLogsHandler())
		}
	}

	return router
}

// auditMiddleware returns nil when there is nowhere to send audit records.
// Nil interfaces are passed explicitly so the middleware never sees a typed nil.
func auditMiddleware(deps Dependencies, cfg config.AuditConfig) gin.HandlerFunc {
	var writer middleware.AuditWriter
	if deps.AuditLog != nil {
		writer = deps.AuditLog
	}
	if writer == nil && deps.Shipper == nil {
		return nil
	}
	return middleware.Audit(writer, deps.Shipper, cfg)
}

// @Summary      Health check
// @Description  Liveness probe. Pings the registry store.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy"
// @Router       /health [get]
func healthCheckHandler(store registry.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			middleware.Logger(c).Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "registry store unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the registry store and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
func readinessHandler(store registry.Store, redis HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		if err := store.Ping(ctx); err != nil {
			checks["store"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "registry store not ready",
			})
			return
		}
		checks["store"] = "healthy"

		if redis != nil {
			if err := redis.Health(ctx); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

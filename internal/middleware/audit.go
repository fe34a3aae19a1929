package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/audit"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/safego"
)

// AuditWriter persists audit rows. The Postgres audit repository satisfies it.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records API calls after they complete. By default only successful
// writes are recorded; cfg widens that to reads and failures. Either sink may
// be nil. Writes happen off the request path.
func Audit(writer AuditWriter, shipper audit.Shipper, cfg config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		method := c.Request.Method
		if method == http.MethodOptions || method == http.MethodHead {
			return
		}
		status := c.Writer.Status()
		if method == http.MethodGet && !cfg.LogReadOperations {
			return
		}
		if status >= 400 && !cfg.LogFailedRequests {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		resourceType, resourceID := classifyResource(c, route)
		identity := Identity(c)
		authMethod := c.GetString(ContextAuthMethod)
		requestID := c.GetString(RequestIDKey)
		ip := c.ClientIP()
		now := time.Now().UTC()

		row := &models.AuditLog{
			Action:     method + " " + route,
			StatusCode: status,
			IPAddress:  &ip,
			CreatedAt:  now,
			Metadata:   map[string]interface{}{"request_id": requestID},
		}
		if identity != "" {
			row.Identity = &identity
		}
		if authMethod != "" {
			row.Metadata["auth_method"] = authMethod
		}
		if resourceType != "" {
			row.ResourceType = &resourceType
		}
		if resourceID != "" {
			row.ResourceID = &resourceID
		}
		logger := Logger(c)

		safego.Go("audit-write", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if writer != nil {
				if err := writer.CreateAuditLog(ctx, row); err != nil {
					logger.Error("failed to create audit log", "action", row.Action, "error", err)
				}
			}
			if shipper != nil {
				entry := &audit.LogEntry{
					Timestamp:    now,
					Action:       row.Action,
					Identity:     identity,
					ResourceType: resourceType,
					ResourceID:   resourceID,
					RequestID:    requestID,
					IPAddress:    ip,
					AuthMethod:   authMethod,
					StatusCode:   status,
				}
				if err := shipper.Ship(ctx, entry); err != nil {
					logger.Error("failed to ship audit log", "action", row.Action, "error", err)
				}
			}
		})
	}
}

// classifyResource derives the audited resource from the matched route
func classifyResource(c *gin.Context, route string) (string, string) {
	switch {
	case strings.Contains(route, "/api-keys"):
		return "api_key", c.Param("id")
	case strings.Contains(route, "/roles"):
		return "role", c.Param("identity")
	case strings.Contains(route, "/snapshots"):
		return "snapshot", ""
	case strings.Contains(route, "/records"):
		return "record", c.Param("modelId")
	}
	return "", ""
}

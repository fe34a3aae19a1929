package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/db/repositories"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// AuditLister reads persisted audit rows. *repositories.AuditRepository
// satisfies it.
type AuditLister interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// AuditHandlers serves the audit log of administrative and registry calls
type AuditHandlers struct {
	logs AuditLister
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(logs AuditLister) *AuditHandlers {
	return &AuditHandlers{logs: logs}
}

// @Summary      List audit logs
// @Description  Lists recorded API calls, newest first. Only available with the postgres store.
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Param        identity       query  string  false  "Filter by caller identity"
// @Param        action         query  string  false  "Filter by action, e.g. POST /api/v1/records"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Param        start_date     query  string  false  "RFC3339 lower bound"
// @Param        end_date       query  string  false  "RFC3339 upper bound"
// @Param        page           query  int     false  "Page number"  default(1)
// @Param        per_page       query  int     false  "Items per page (max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /api/v1/admin/audit-logs [get]
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 200 {
			perPage = 50
		}

		var filters repositories.AuditFilters
		if v := c.Query("identity"); v != "" {
			id := registry.NormalizeIdentity(v)
			filters.Identity = &id
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		for _, p := range []struct {
			name string
			dst  **time.Time
		}{{"start_date", &filters.StartDate}, {"end_date", &filters.EndDate}} {
			v := c.Query(p.name)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + p.name + " format, use RFC3339"})
				return
			}
			*p.dst = &t
		}

		logs, total, err := h.logs.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			middleware.Logger(c).Error("failed to list audit logs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		resp := make([]gin.H, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, gin.H{
				"id":            l.ID,
				"identity":      l.Identity,
				"action":        l.Action,
				"resource_type": l.ResourceType,
				"resource_id":   l.ResourceID,
				"status_code":   l.StatusCode,
				"metadata":      l.Metadata,
				"ip_address":    l.IPAddress,
				"created_at":    l.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"logs": resp,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

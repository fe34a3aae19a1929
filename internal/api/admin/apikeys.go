package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	keys   auth.KeyStore
	prefix string
	now    func() time.Time
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(keys auth.KeyStore, cfg config.APIKeyConfig) *APIKeyHandlers {
	return &APIKeyHandlers{keys: keys, prefix: cfg.Prefix, now: time.Now}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Identity  string  `json:"identity" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	ExpiresAt *string `json:"expires_at"` // RFC3339 format
}

// CreateAPIKeyResponse represents the response when creating an API key
type CreateAPIKeyResponse struct {
	ID        string     `json:"id"`
	Identity  string     `json:"identity"`
	Name      string     `json:"name"`
	Key       string     `json:"key"` // Only returned once during creation
	KeyPrefix string     `json:"key_prefix"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// @Summary      List API keys
// @Description  Lists issued API keys, optionally filtered by identity. Key hashes are never returned.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        identity  query  string  false  "Filter by bound identity"
// @Success      200  {object}  map[string]interface{}  "List of API keys"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/api-keys [get]
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.keys.ListAll(c.Request.Context())
		if err != nil {
			middleware.Logger(c).Error("failed to list API keys", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}

		filter := registry.NormalizeIdentity(c.Query("identity"))
		out := make([]*models.APIKey, 0, len(keys))
		for _, k := range keys {
			if filter != "" && registry.NormalizeIdentity(k.Identity) != filter {
				continue
			}
			out = append(out, k)
		}
		c.JSON(http.StatusOK, gin.H{"keys": out})
	}
}

// @Summary      Create API key
// @Description  Issues an API key bound to an identity. The full key is only returned once.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "API key creation request"
// @Success      201  {object}  CreateAPIKeyResponse  "API key created (full key returned once)"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/api-keys [post]
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		identity := registry.NormalizeIdentity(req.Identity)
		name := strings.TrimSpace(req.Name)
		if identity == "" || name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "identity and name are required"})
			return
		}

		var expiresAt *time.Time
		if req.ExpiresAt != nil && *req.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_at format, use RFC3339"})
				return
			}
			if !t.After(h.now()) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
				return
			}
			t = t.UTC()
			expiresAt = &t
		}

		key, rec, err := auth.IssueAPIKey(c.Request.Context(), h.keys, h.prefix, identity, name, middleware.Identity(c), expiresAt)
		if err != nil {
			middleware.Logger(c).Error("failed to create API key", "identity", identity, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
			return
		}

		middleware.Logger(c).Info("API key issued", "key_id", rec.ID, "identity", identity, "key_prefix", rec.KeyPrefix)
		c.JSON(http.StatusCreated, CreateAPIKeyResponse{
			ID:        rec.ID,
			Identity:  rec.Identity,
			Name:      rec.Name,
			Key:       key,
			KeyPrefix: rec.KeyPrefix,
			ExpiresAt: rec.ExpiresAt,
			CreatedAt: rec.CreatedAt,
		})
	}
}

// @Summary      Revoke API key
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "API key revoked"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/api-keys/{id} [delete]
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ok, err := h.keys.Revoke(c.Request.Context(), id)
		if err != nil {
			middleware.Logger(c).Error("failed to revoke API key", "key_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke API key"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
	}
}

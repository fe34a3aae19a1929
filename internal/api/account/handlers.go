// Package account serves caller-scoped endpoints: who the caller is to the
// registry and which records they own.
package account

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api/respond"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Handlers serves /api/v1/whoami and /api/v1/me
type Handlers struct {
	reg *registry.Registry
}

// NewHandlers creates the account handlers
func NewHandlers(reg *registry.Registry) *Handlers {
	return &Handlers{reg: reg}
}

// WhoAmIResponse describes the caller's standing in the registry
type WhoAmIResponse struct {
	Identity    string   `json:"identity"`
	AuthMethod  string   `json:"auth_method,omitempty"`
	IsPrincipal bool     `json:"is_principal"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Principal   string   `json:"principal"`
}

// @Summary      Describe the caller
// @Description  Returns the authenticated identity with its roles and permission names.
// @Tags         Account
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  WhoAmIResponse
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/whoami [get]
func (h *Handlers) WhoAmI(c *gin.Context) {
	id := middleware.Identity(c)
	res := h.reg.Resolver()
	roles := res.Roles(id)
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, WhoAmIResponse{
		Identity:    id,
		AuthMethod:  c.GetString(middleware.ContextAuthMethod),
		IsPrincipal: res.IsPrincipal(id),
		Roles:       roles,
		Permissions: res.Permissions(id).Names(),
		Principal:   res.Principal(),
	})
}

// MyRecords lists the records the caller registered
// GET /api/v1/me/records
func (h *Handlers) MyRecords(c *gin.Context) {
	recs, err := h.reg.ListRecordsByOwner(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

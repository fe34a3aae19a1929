// Package admin implements the administrative HTTP handlers of the registry.
// Every route in this package is mounted behind authentication and the
// manage_roles permission (see internal/middleware/rbac.go); by default only
// the principal holds it.
package admin

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// RoleHandlers exposes the live role table and identity bindings
type RoleHandlers struct {
	resolver *registry.Resolver
}

// NewRoleHandlers creates a new RoleHandlers instance
func NewRoleHandlers(resolver *registry.Resolver) *RoleHandlers {
	return &RoleHandlers{resolver: resolver}
}

// RoleBinding is one identity with its bound roles and effective permissions
type RoleBinding struct {
	Identity    string   `json:"identity"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// RolesResponse is the role administration view
type RolesResponse struct {
	Principal string              `json:"principal"`
	Roles     map[string][]string `json:"roles"`
	Bindings  []RoleBinding       `json:"bindings"`
}

// @Summary      List roles and bindings
// @Description  Returns the role table and the identity bindings currently in effect. Bindings reload from the config file when watching is enabled.
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  RolesResponse
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Router       /api/v1/admin/roles [get]
func (h *RoleHandlers) ListRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		table := h.resolver.RoleTable()
		roles := make(map[string][]string, len(table))
		for name, perm := range table {
			roles[name] = perm.Names()
		}

		bound := h.resolver.Bindings()
		ids := make([]string, 0, len(bound))
		for id := range bound {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		bindings := make([]RoleBinding, 0, len(ids))
		for _, id := range ids {
			bindings = append(bindings, RoleBinding{
				Identity:    id,
				Roles:       h.resolver.Roles(id),
				Permissions: h.resolver.Permissions(id).Names(),
			})
		}

		c.JSON(http.StatusOK, RolesResponse{
			Principal: h.resolver.Principal(),
			Roles:     roles,
			Bindings:  bindings,
		})
	}
}

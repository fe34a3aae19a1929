package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// RequireIdentity rejects anonymous requests. It is mounted after
// Authenticator.Optional on routes that read caller-scoped data.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Identity(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequirePermission gates administrative routes on a permission bit of the
// caller's role. The lookup happens per request against the live role table,
// so a binding reload takes effect on the next call without reissuing tokens.
//
// Registry mutations are not gated here; the registry checks them itself and
// reports the refusal as an authorization error.
func RequirePermission(resolver *registry.Resolver, perm registry.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity(c)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !resolver.Can(id, perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": "Required permission: " + strings.Join(perm.Names(), ","),
			})
			return
		}
		c.Next()
	}
}

// Package respond writes the registry's JSON error bodies. Every error
// response carries a human-readable "error" and a machine-readable "kind".
package respond

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// KindInternal is reported for failures that are not registry rejections
const KindInternal = "internal"

// StatusFor maps a registry rejection kind to its HTTP status
func StatusFor(kind registry.Kind) int {
	switch kind {
	case registry.KindAuthorization:
		return http.StatusForbidden
	case registry.KindInvalidTransition:
		return http.StatusConflict
	case registry.KindNotFound:
		return http.StatusNotFound
	case registry.KindInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error aborts the request with the response matching err. Registry
// rejections keep their reason; anything else is logged and reported as an
// opaque internal error.
func Error(c *gin.Context, err error) {
	if rerr, ok := registry.AsError(err); ok {
		c.AbortWithStatusJSON(StatusFor(rerr.Kind), gin.H{"error": rerr.Reason, "kind": string(rerr.Kind)})
		return
	}
	middleware.Logger(c).Error("request failed", "path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "kind": KindInternal})
}

// BadRequest aborts with 400 and an invalid_argument body
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": string(registry.KindInvalidArgument)})
}

// Uint64Param parses a non-negative integer path parameter. On failure it
// writes a 400 response and returns false.
func Uint64Param(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return v, true
}

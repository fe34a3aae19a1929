// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, metrics and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Metrics → Security → Audit → Auth → RateLimit → Permission → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs after auth so buckets are keyed by caller identity, with
// the client address as the fallback for anonymous calls. A request with an
// invalid credential is rejected by Auth before it reaches the limiter.
// Auth establishes the caller identity; it never decides what the identity may
// do. Registry operations make that decision themselves, so a mutation gated
// here is still checked again in the registry.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/safego"
)

// Context keys set by the authenticator
const (
	ContextIdentity   = "identity"
	ContextAuthMethod = "auth_method"
	ContextAPIKeyID   = "api_key_id"
)

// Authentication methods recorded under ContextAuthMethod
const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
	AuthMethodOIDC   = "oidc"
)

var (
	errNoCredentials      = errors.New("missing authorization header")
	errInvalidCredentials = errors.New("invalid credentials")
)

// IdentityVerifier maps an external bearer token to an identity. The OIDC
// verifier satisfies it.
type IdentityVerifier interface {
	Identity(ctx context.Context, rawToken string) (string, error)
}

// Authenticator resolves bearer credentials to a registry identity. Registry
// JWTs are tried first, then OIDC ID tokens, then API keys.
type Authenticator struct {
	keys   auth.KeyStore
	oidc   IdentityVerifier
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthenticator builds an authenticator. keys and verifier may be nil to
// disable API keys and OIDC respectively.
func NewAuthenticator(keys auth.KeyStore, verifier IdentityVerifier, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{keys: keys, oidc: verifier, now: time.Now, logger: logger}
}

// principal is the outcome of a successful authentication
type principal struct {
	identity string
	method   string
	apiKey   *models.APIKey
}

// looksLikeJWT reports whether token has the three dot-separated JWS segments
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func (a *Authenticator) authenticate(c *gin.Context) (*principal, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, errNoCredentials
	}
	token, err := auth.ExtractBearerToken(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCredentials, err)
	}
	ctx := c.Request.Context()

	if looksLikeJWT(token) {
		if claims, err := auth.ValidateJWT(token); err == nil {
			return &principal{identity: claims.Identity, method: AuthMethodJWT}, nil
		}
		if a.oidc != nil {
			id, err := a.oidc.Identity(ctx, token)
			if err == nil {
				return &principal{identity: id, method: AuthMethodOIDC}, nil
			}
			a.logger.Debug("OIDC token rejected", "error", err)
		}
		return nil, errInvalidCredentials
	}

	if a.keys == nil {
		return nil, errInvalidCredentials
	}

	// Only the bcrypt hash is stored. The plaintext prefix narrows the
	// candidate rows so bcrypt runs on one or two keys, not the whole table.
	key, err := auth.AuthenticateAPIKey(ctx, a.keys, token, a.now())
	if errors.Is(err, auth.ErrInvalidAPIKey) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	// Last-used tracking is best effort and must not add a write to the
	// request path.
	keyID := key.ID
	safego.Go("api-key-touch", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.keys.UpdateLastUsed(ctx, keyID); err != nil {
			a.logger.Warn("failed to update API key last_used_at", "key_id", keyID, "error", err)
		}
	})
	return &principal{identity: key.Identity, method: AuthMethodAPIKey, apiKey: key}, nil
}

func setPrincipal(c *gin.Context, p *principal) {
	c.Set(ContextIdentity, registry.NormalizeIdentity(p.identity))
	c.Set(ContextAuthMethod, p.method)
	if p.apiKey != nil {
		c.Set(ContextAPIKeyID, p.apiKey.ID)
	}
}

// Required rejects requests without a valid credential
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.authenticate(c)
		switch {
		case errors.Is(err, errNoCredentials), errors.Is(err, errInvalidCredentials):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case err != nil:
			a.logger.Error("credential lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}
		setPrincipal(c, p)
		c.Next()
	}
}

// Optional authenticates when credentials are present and lets anonymous
// requests through. Invalid credentials are still rejected, so a typo in a
// token is never silently downgraded to an anonymous call.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		a.Required()(c)
	}
}

// Identity returns the authenticated caller identity, or "" for anonymous requests
func Identity(c *gin.Context) string {
	return c.GetString(ContextIdentity)
}

// Package oidc verifies externally issued OpenID Connect ID tokens presented
// as bearer credentials and maps them to registry identities. Discovery runs
// once at construction; signing keys are fetched and cached by go-oidc.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/aibom-registry/aibom-registry/internal/config"
)

// ErrMissingIdentityClaim is returned when a verified token lacks the
// configured identity claim.
var ErrMissingIdentityClaim = errors.New("ID token missing identity claim")

// tokenVerifier is the part of *oidc.IDTokenVerifier used here
type tokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Verifier checks ID tokens against one issuer and client ID
type Verifier struct {
	verifier tokenVerifier
	claim    string
}

// NewVerifier performs OIDC discovery against cfg.IssuerURL
func NewVerifier(ctx context.Context, cfg *config.OIDCConfig) (*Verifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return newVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg.IdentityClaim), nil
}

func newVerifier(v tokenVerifier, claim string) *Verifier {
	if claim == "" {
		claim = "sub"
	}
	return &Verifier{verifier: v, claim: claim}
}

// Identity verifies rawIDToken and returns the identity claim's value
func (v *Verifier) Identity(ctx context.Context, rawIDToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", fmt.Errorf("failed to verify ID token: %w", err)
	}
	return extractIdentity(idToken, v.claim)
}

func extractIdentity(idToken *oidc.IDToken, claim string) (string, error) {
	if claim == "sub" {
		if idToken.Subject == "" {
			return "", ErrMissingIdentityClaim
		}
		return idToken.Subject, nil
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return "", fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	s, ok := raw[claim].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingIdentityClaim, claim)
	}
	return s, nil
}

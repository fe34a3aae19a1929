// Package auth provides the credential primitives that establish a caller's
// identity: registry-issued JWTs, long-lived bcrypt-hashed API keys bound to
// an identity, and (in the oidc subpackage) external OIDC ID tokens.
// See internal/middleware/auth.go for the request-time logic that uses them.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the number of random bytes behind every key
	APIKeyLength = 32

	// DisplayPrefixLength is how much of a key is stored in clear for lookup
	// and shown in listings
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	bearerScheme = "bearer"
)

var (
	ErrNoAuthorization  = errors.New("authorization header is empty")
	ErrNotBearer        = errors.New("authorization header must use the Bearer scheme")
	ErrEmptyCredential  = errors.New("credential is empty after Bearer prefix")
	ErrInvalidKeyPrefix = errors.New("API key prefix must be non-empty letters and digits")
)

// GenerateAPIKey creates a key of the form <prefix>_<random>. It returns the
// plaintext (shown once), the bcrypt hash to store, and the display prefix
// used to find the hash again.
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	if !validKeyPrefix(prefix) {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidKeyPrefix, prefix)
	}

	raw := make([]byte, APIKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	key = prefix + "_" + base64.RawURLEncoding.EncodeToString(raw)

	hash, err = HashAPIKey(key)
	if err != nil {
		return "", "", "", err
	}
	return key, hash, DisplayPrefix(key), nil
}

// HashAPIKey returns the bcrypt hash stored for key
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(b), nil
}

// DisplayPrefix returns the clear-text lookup prefix of key
func DisplayPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractBearerToken returns the credential carried by an Authorization
// header. JWTs, OIDC ID tokens and API keys all travel as Bearer tokens.
// The scheme name is case-insensitive.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", ErrNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyCredential
	}
	return token, nil
}

func validKeyPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, r := range prefix {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

package models

import "time"

// APIKey is a long-lived credential bound to a registry identity.
// Only the bcrypt hash of the key is stored.
type APIKey struct {
	ID          string     `db:"id" json:"id"`
	Identity    string     `db:"identity" json:"identity"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	KeyHash     string     `db:"key_hash" json:"-"`
	KeyPrefix   string     `db:"key_prefix" json:"key_prefix"` // first 10 chars, for lookup and display
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the key has an expiry in the past
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

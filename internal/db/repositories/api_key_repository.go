// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by prefix, issuance, revocation and last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

const apiKeyColumns = `id, identity, name, description, key_hash, key_prefix, expires_at, last_used_at, created_by, created_at`

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a new API key, assigning its ID and creation time
func (r *APIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.Identity,
		apiKey.Name,
		apiKey.Description,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.ExpiresAt,
		apiKey.LastUsedAt,
		apiKey.CreatedBy,
		apiKey.CreatedAt,
	)
	return err
}

func scanAPIKey(row interface{ Scan(...interface{}) error }) (*models.APIKey, error) {
	k := &models.APIKey{}
	err := row.Scan(
		&k.ID,
		&k.Identity,
		&k.Name,
		&k.Description,
		&k.KeyHash,
		&k.KeyPrefix,
		&k.ExpiresAt,
		&k.LastUsedAt,
		&k.CreatedBy,
		&k.CreatedAt,
	)
	return k, err
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, keyID)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// GetByPrefix retrieves API keys matching a prefix (for authentication)
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error) {
	return r.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 ORDER BY created_at DESC`, keyPrefix)
}

// ListByIdentity retrieves all API keys bound to an identity
func (r *APIKeyRepository) ListByIdentity(ctx context.Context, identity string) ([]*models.APIKey, error) {
	return r.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE identity = $1 ORDER BY created_at DESC`, identity)
}

// ListAll retrieves every API key (for admin use)
func (r *APIKeyRepository) ListAll(ctx context.Context) ([]*models.APIKey, error) {
	return r.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
}

func (r *APIKeyRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID, time.Now().UTC())
	return err
}

// Revoke deletes an API key
func (r *APIKeyRepository) Revoke(ctx context.Context, keyID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, keyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteExpired deletes all expired API keys and returns how many were removed
func (r *APIKeyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

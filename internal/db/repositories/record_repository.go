// record_repository.go implements RecordRepository, the Postgres record store:
// dense model id assignment, status updates and owner lookups.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

const recordColumns = `model_id, owner, cid, status, review_reason, status_changed_at, created_at`

// RecordRepository handles aibom_records operations
type RecordRepository struct {
	db Querier
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db Querier) *RecordRepository {
	return &RecordRepository{db: db}
}

// Insert stores rec under the next model id and sets rec.ModelID. Callers
// must hold the registry write lock so ids stay dense.
func (r *RecordRepository) Insert(ctx context.Context, rec *models.AIBOMRecord) error {
	query := `
		INSERT INTO aibom_records (model_id, owner, cid, status, review_reason, status_changed_at, created_at)
		SELECT COALESCE(MAX(model_id) + 1, 0), $1, $2, $3, $4, $5, $6
		FROM aibom_records
		RETURNING model_id
	`
	return r.db.QueryRowxContext(ctx, query,
		rec.Owner,
		rec.CID,
		rec.Status,
		rec.ReviewReason,
		rec.Timestamp,
		rec.CreatedAt,
	).Scan(&rec.ModelID)
}

// UpdateStatus writes the mutable review fields of rec
func (r *RecordRepository) UpdateStatus(ctx context.Context, rec *models.AIBOMRecord) (bool, error) {
	query := `
		UPDATE aibom_records
		SET status = $2, review_reason = $3, status_changed_at = $4
		WHERE model_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, rec.ModelID, rec.Status, rec.ReviewReason, rec.Timestamp)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID returns the record, or nil if it does not exist
func (r *RecordRepository) GetByID(ctx context.Context, modelID uint64) (*models.AIBOMRecord, error) {
	var rec models.AIBOMRecord
	err := r.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM aibom_records WHERE model_id = $1`, modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalizeRecord(&rec)
	return &rec, nil
}

// List returns every record in model id order
func (r *RecordRepository) List(ctx context.Context) ([]*models.AIBOMRecord, error) {
	recs := make([]*models.AIBOMRecord, 0)
	if err := r.db.SelectContext(ctx, &recs, `SELECT `+recordColumns+` FROM aibom_records ORDER BY model_id`); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		normalizeRecord(rec)
	}
	return recs, nil
}

// ListByOwner returns the records registered by owner in model id order
func (r *RecordRepository) ListByOwner(ctx context.Context, owner string) ([]*models.AIBOMRecord, error) {
	recs := make([]*models.AIBOMRecord, 0)
	query := `SELECT ` + recordColumns + ` FROM aibom_records WHERE owner = $1 ORDER BY model_id`
	if err := r.db.SelectContext(ctx, &recs, query, owner); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		normalizeRecord(rec)
	}
	return recs, nil
}

// Count returns the number of registered records
func (r *RecordRepository) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM aibom_records`)
	return n, err
}

// lib/pq returns timestamptz in a fixed zone; stored values are always UTC
func normalizeRecord(rec *models.AIBOMRecord) {
	rec.Timestamp = rec.Timestamp.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
}

// ledger_repository.go implements LedgerRepository for the four append-only
// per-model ledgers: submissions, vulnerabilities, advisories and review
// decisions. Each append takes the next dense index for its model.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// LedgerRepository handles ledger table operations
type LedgerRepository struct {
	db Querier
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db Querier) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ---------------------------------------------------------------------------
// Submissions
// ---------------------------------------------------------------------------

// AppendSubmission stores e at the next index and sets e.Index
func (r *LedgerRepository) AppendSubmission(ctx context.Context, e *models.SubmissionEntry) error {
	query := `
		INSERT INTO submissions (model_id, idx, cid, submitter, created_at)
		SELECT $1, COALESCE(MAX(idx) + 1, 0), $2, $3, $4
		FROM submissions WHERE model_id = $1
		RETURNING idx
	`
	return r.db.QueryRowxContext(ctx, query, e.ModelID, e.CID, e.Submitter, e.CreatedAt).Scan(&e.Index)
}

// ListSubmissions returns the model's submissions oldest first
func (r *LedgerRepository) ListSubmissions(ctx context.Context, modelID uint64) ([]*models.SubmissionEntry, error) {
	out := make([]*models.SubmissionEntry, 0)
	query := `SELECT model_id, idx, cid, submitter, created_at FROM submissions WHERE model_id = $1 ORDER BY idx`
	if err := r.db.SelectContext(ctx, &out, query, modelID); err != nil {
		return nil, err
	}
	for _, e := range out {
		e.CreatedAt = e.CreatedAt.UTC()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Vulnerabilities
// ---------------------------------------------------------------------------

const vulnerabilityColumns = `model_id, idx, cid, severity, active, reporter, created_at`

// AppendVulnerability stores e at the next index and sets e.Index
func (r *LedgerRepository) AppendVulnerability(ctx context.Context, e *models.VulnerabilityEntry) error {
	query := `
		INSERT INTO vulnerabilities (model_id, idx, cid, severity, active, reporter, created_at)
		SELECT $1, COALESCE(MAX(idx) + 1, 0), $2, $3, $4, $5, $6
		FROM vulnerabilities WHERE model_id = $1
		RETURNING idx
	`
	return r.db.QueryRowxContext(ctx, query,
		e.ModelID, e.CID, e.Severity, e.Active, e.Reporter, e.CreatedAt,
	).Scan(&e.Index)
}

// GetVulnerability returns one entry, or nil if the index is out of range
func (r *LedgerRepository) GetVulnerability(ctx context.Context, modelID, index uint64) (*models.VulnerabilityEntry, error) {
	var e models.VulnerabilityEntry
	query := `SELECT ` + vulnerabilityColumns + ` FROM vulnerabilities WHERE model_id = $1 AND idx = $2`
	err := r.db.GetContext(ctx, &e, query, modelID, index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// ListVulnerabilities returns the model's vulnerabilities oldest first
func (r *LedgerRepository) ListVulnerabilities(ctx context.Context, modelID uint64) ([]*models.VulnerabilityEntry, error) {
	out := make([]*models.VulnerabilityEntry, 0)
	query := `SELECT ` + vulnerabilityColumns + ` FROM vulnerabilities WHERE model_id = $1 ORDER BY idx`
	if err := r.db.SelectContext(ctx, &out, query, modelID); err != nil {
		return nil, err
	}
	for _, e := range out {
		e.CreatedAt = e.CreatedAt.UTC()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Advisories
// ---------------------------------------------------------------------------

const advisoryColumns = `model_id, idx, cid, scope, action, reporter, created_at`

// AppendAdvisory stores e at the next index and sets e.Index
func (r *LedgerRepository) AppendAdvisory(ctx context.Context, e *models.AdvisoryEntry) error {
	query := `
		INSERT INTO advisories (model_id, idx, cid, scope, action, reporter, created_at)
		SELECT $1, COALESCE(MAX(idx) + 1, 0), $2, $3, $4, $5, $6
		FROM advisories WHERE model_id = $1
		RETURNING idx
	`
	return r.db.QueryRowxContext(ctx, query,
		e.ModelID, e.CID, e.Scope, e.Action, e.Reporter, e.CreatedAt,
	).Scan(&e.Index)
}

// GetAdvisory returns one entry, or nil if the index is out of range
func (r *LedgerRepository) GetAdvisory(ctx context.Context, modelID, index uint64) (*models.AdvisoryEntry, error) {
	var e models.AdvisoryEntry
	query := `SELECT ` + advisoryColumns + ` FROM advisories WHERE model_id = $1 AND idx = $2`
	err := r.db.GetContext(ctx, &e, query, modelID, index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// ListAdvisories returns the model's advisories oldest first
func (r *LedgerRepository) ListAdvisories(ctx context.Context, modelID uint64) ([]*models.AdvisoryEntry, error) {
	out := make([]*models.AdvisoryEntry, 0)
	query := `SELECT ` + advisoryColumns + ` FROM advisories WHERE model_id = $1 ORDER BY idx`
	if err := r.db.SelectContext(ctx, &out, query, modelID); err != nil {
		return nil, err
	}
	for _, e := range out {
		e.CreatedAt = e.CreatedAt.UTC()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Review decisions
// ---------------------------------------------------------------------------

// AppendDecision stores d at the next index and sets d.Index
func (r *LedgerRepository) AppendDecision(ctx context.Context, d *models.ReviewDecision) error {
	query := `
		INSERT INTO review_decisions (model_id, idx, from_status, to_status, reason, decider, created_at)
		SELECT $1, COALESCE(MAX(idx) + 1, 0), $2, $3, $4, $5, $6
		FROM review_decisions WHERE model_id = $1
		RETURNING idx
	`
	return r.db.QueryRowxContext(ctx, query,
		d.ModelID, d.FromStatus, d.ToStatus, d.Reason, d.Decider, d.CreatedAt,
	).Scan(&d.Index)
}

// ListDecisions returns the model's decision history oldest first
func (r *LedgerRepository) ListDecisions(ctx context.Context, modelID uint64) ([]*models.ReviewDecision, error) {
	out := make([]*models.ReviewDecision, 0)
	query := `
		SELECT model_id, idx, from_status, to_status, reason, decider, created_at
		FROM review_decisions WHERE model_id = $1 ORDER BY idx
	`
	if err := r.db.SelectContext(ctx, &out, query, modelID); err != nil {
		return nil, err
	}
	for _, d := range out {
		d.CreatedAt = d.CreatedAt.UTC()
	}
	return out, nil
}

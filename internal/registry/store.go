package registry

import (
	"context"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// Store is the persistence boundary of the registry. Update runs fn in a
// read-write transaction whose writes become visible together or not at all;
// if fn returns an error nothing it wrote is kept. View runs fn against a
// consistent read-only view.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside a store transaction.
// Getters return (nil, nil) when the row does not exist.
type Tx interface {
	RecordTx
	SubmissionTx
	FindingTx
	DecisionTx
	EventTx
}

// RecordTx covers the record store
type RecordTx interface {
	// InsertRecord assigns rec.ModelID as the next dense identifier.
	InsertRecord(ctx context.Context, rec *models.AIBOMRecord) error
	UpdateRecord(ctx context.Context, rec *models.AIBOMRecord) error
	GetRecord(ctx context.Context, modelID uint64) (*models.AIBOMRecord, error)
	ListRecords(ctx context.Context) ([]*models.AIBOMRecord, error)
	ListRecordsByOwner(ctx context.Context, owner string) ([]*models.AIBOMRecord, error)
	CountRecords(ctx context.Context) (uint64, error)
}

// SubmissionTx covers the submission ledger
type SubmissionTx interface {
	// AppendSubmission assigns e.Index as the next per-model index.
	AppendSubmission(ctx context.Context, e *models.SubmissionEntry) error
	ListSubmissions(ctx context.Context, modelID uint64) ([]*models.SubmissionEntry, error)
}

// FindingTx covers the vulnerability and advisory ledgers
type FindingTx interface {
	AppendVulnerability(ctx context.Context, e *models.VulnerabilityEntry) error
	GetVulnerability(ctx context.Context, modelID, index uint64) (*models.VulnerabilityEntry, error)
	ListVulnerabilities(ctx context.Context, modelID uint64) ([]*models.VulnerabilityEntry, error)

	AppendAdvisory(ctx context.Context, e *models.AdvisoryEntry) error
	GetAdvisory(ctx context.Context, modelID, index uint64) (*models.AdvisoryEntry, error)
	ListAdvisories(ctx context.Context, modelID uint64) ([]*models.AdvisoryEntry, error)
}

// DecisionTx covers the review decision history
type DecisionTx interface {
	AppendDecision(ctx context.Context, d *models.ReviewDecision) error
	ListDecisions(ctx context.Context, modelID uint64) ([]*models.ReviewDecision, error)
}

// EventTx covers the event log
type EventTx interface {
	AppendEvent(ctx context.Context, ev *models.RegistryEvent) error
	LastEvent(ctx context.Context) (*models.RegistryEvent, error)
	// ListEvents returns up to limit events with Sequence > after, oldest first.
	// A limit <= 0 means no limit.
	ListEvents(ctx context.Context, after uint64, limit int) ([]*models.RegistryEvent, error)
}

// registry_store.go implements registry.Store on Postgres. Every Update runs
// in one SQL transaction that first takes a transaction-scoped advisory lock,
// so writers from every server process are applied in a single total order.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// registryLockKey identifies the registry's advisory lock
const registryLockKey int64 = 0x41424f4d

// RegistryStore is the Postgres registry.Store
type RegistryStore struct {
	db *sqlx.DB
}

// NewRegistryStore creates a store over db
func NewRegistryStore(db *sqlx.DB) *RegistryStore {
	return &RegistryStore{db: db}
}

func (s *RegistryStore) Update(ctx context.Context, fn func(tx registry.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, registryLockKey); err != nil {
		return fmt.Errorf("failed to acquire registry lock: %w", err)
	}
	if err := fn(newPGTx(tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *RegistryStore) View(ctx context.Context, fn func(tx registry.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPGTx(tx, false)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *RegistryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *RegistryStore) Close() error {
	return s.db.Close()
}

type pgTx struct {
	writable bool
	records  *RecordRepository
	ledgers  *LedgerRepository
	events   *EventRepository
}

func newPGTx(tx *sqlx.Tx, writable bool) *pgTx {
	return &pgTx{
		writable: writable,
		records:  NewRecordRepository(tx),
		ledgers:  NewLedgerRepository(tx),
		events:   NewEventRepository(tx),
	}
}

// unaddressable reports whether any id exceeds the BIGINT range. Such rows
// cannot exist, and database/sql refuses to bind the value.
func unaddressable(ids ...uint64) bool {
	for _, id := range ids {
		if id > math.MaxInt64 {
			return true
		}
	}
	return false
}

func (t *pgTx) write() error {
	if !t.writable {
		return registry.ErrReadOnly
	}
	return nil
}

func (t *pgTx) InsertRecord(ctx context.Context, rec *models.AIBOMRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.records.Insert(ctx, rec)
}

func (t *pgTx) UpdateRecord(ctx context.Context, rec *models.AIBOMRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	ok, err := t.records.UpdateStatus(ctx, rec)
	if err != nil {
		return err
	}
	if !ok {
		return &registry.Error{Kind: registry.KindNotFound, Reason: registry.ReasonModelNotFound}
	}
	return nil
}

func (t *pgTx) GetRecord(ctx context.Context, modelID uint64) (*models.AIBOMRecord, error) {
	if unaddressable(modelID) {
		return nil, nil
	}
	return t.records.GetByID(ctx, modelID)
}

func (t *pgTx) ListRecords(ctx context.Context) ([]*models.AIBOMRecord, error) {
	return t.records.List(ctx)
}

func (t *pgTx) ListRecordsByOwner(ctx context.Context, owner string) ([]*models.AIBOMRecord, error) {
	return t.records.ListByOwner(ctx, owner)
}

func (t *pgTx) CountRecords(ctx context.Context) (uint64, error) {
	return t.records.Count(ctx)
}

func (t *pgTx) AppendSubmission(ctx context.Context, e *models.SubmissionEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.ledgers.AppendSubmission(ctx, e)
}

func (t *pgTx) ListSubmissions(ctx context.Context, modelID uint64) ([]*models.SubmissionEntry, error) {
	if unaddressable(modelID) {
		return nil, nil
	}
	return t.ledgers.ListSubmissions(ctx, modelID)
}

func (t *pgTx) AppendVulnerability(ctx context.Context, e *models.VulnerabilityEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.ledgers.AppendVulnerability(ctx, e)
}

func (t *pgTx) GetVulnerability(ctx context.Context, modelID, index uint64) (*models.VulnerabilityEntry, error) {
	if unaddressable(modelID, index) {
		return nil, nil
	}
	return t.ledgers.GetVulnerability(ctx, modelID, index)
}

func (t *pgTx) ListVulnerabilities(ctx context.Context, modelID uint64) ([]*models.VulnerabilityEntry, error) {
	if unaddressable(modelID) {
		return nil, nil
	}
	return t.ledgers.ListVulnerabilities(ctx, modelID)
}

func (t *pgTx) AppendAdvisory(ctx context.Context, e *models.AdvisoryEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.ledgers.AppendAdvisory(ctx, e)
}

func (t *pgTx) GetAdvisory(ctx context.Context, modelID, index uint64) (*models.AdvisoryEntry, error) {
	if unaddressable(modelID, index) {
		return nil, nil
	}
	return t.ledgers.GetAdvisory(ctx, modelID, index)
}

func (t *pgTx) ListAdvisories(ctx context.Context, modelID uint64) ([]*models.AdvisoryEntry, error) {
	if unaddressable(modelID) {
		return nil, nil
	}
	return t.ledgers.ListAdvisories(ctx, modelID)
}

func (t *pgTx) AppendDecision(ctx context.Context, d *models.ReviewDecision) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.ledgers.AppendDecision(ctx, d)
}

func (t *pgTx) ListDecisions(ctx context.Context, modelID uint64) ([]*models.ReviewDecision, error) {
	if unaddressable(modelID) {
		return nil, nil
	}
	return t.ledgers.ListDecisions(ctx, modelID)
}

func (t *pgTx) AppendEvent(ctx context.Context, ev *models.RegistryEvent) error {
	if err := t.write(); err != nil {
		return err
	}
	return t.events.Append(ctx, ev)
}

func (t *pgTx) LastEvent(ctx context.Context) (*models.RegistryEvent, error) {
	return t.events.Last(ctx)
}

func (t *pgTx) ListEvents(ctx context.Context, after uint64, limit int) ([]*models.RegistryEvent, error) {
	if unaddressable(after) {
		return nil, nil
	}
	return t.events.ListAfter(ctx, after, limit)
}

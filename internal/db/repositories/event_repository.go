// event_repository.go implements EventRepository over the hash-chained
// registry_events table.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

const eventColumns = `sequence, id, type, model_id, actor, payload, occurred_at, prev_hash, hash`

// EventRepository handles registry_events operations
type EventRepository struct {
	db Querier
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db Querier) *EventRepository {
	return &EventRepository{db: db}
}

// Append stores a sealed event
func (r *EventRepository) Append(ctx context.Context, ev *models.RegistryEvent) error {
	query := `
		INSERT INTO registry_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	// payload goes over the wire as text; a []byte would be sent as bytea
	_, err := r.db.ExecContext(ctx, query,
		ev.Sequence,
		ev.ID,
		ev.Type,
		ev.ModelID,
		ev.Actor,
		string(ev.Payload),
		ev.OccurredAt,
		ev.PrevHash,
		ev.Hash,
	)
	return err
}

// Last returns the newest event, or nil for an empty log
func (r *EventRepository) Last(ctx context.Context) (*models.RegistryEvent, error) {
	var ev models.RegistryEvent
	err := r.db.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM registry_events ORDER BY sequence DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	return &ev, nil
}

// ListAfter returns up to limit events with sequence > after, oldest first.
// A limit <= 0 returns the rest of the log.
func (r *EventRepository) ListAfter(ctx context.Context, after uint64, limit int) ([]*models.RegistryEvent, error) {
	out := make([]*models.RegistryEvent, 0)
	query := `SELECT ` + eventColumns + ` FROM registry_events WHERE sequence > $1 ORDER BY sequence`
	args := []interface{}{after}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	for _, ev := range out {
		ev.OccurredAt = ev.OccurredAt.UTC()
	}
	return out, nil
}

package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/google/uuid"
)

var (
	ErrSequenceGap  = errors.New("event sequence gap")
	ErrBrokenLink   = errors.New("event prev_hash does not match predecessor")
	ErrHashMismatch = errors.New("event hash does not match contents")
)

// New builds an unsealed event. The payload is encoded as compact JSON.
func New(typ models.EventType, modelID uint64, actor string, at time.Time, payload any) (models.RegistryEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.RegistryEvent{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	return models.RegistryEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		ModelID:    modelID,
		Actor:      actor,
		Payload:    raw,
		OccurredAt: at.UTC(),
	}, nil
}

// Seal places ev after prev in the chain, assigning its sequence number,
// previous hash and own hash. prev is nil for the first event.
func Seal(ev *models.RegistryEvent, prev *models.RegistryEvent) error {
	if prev == nil {
		ev.Sequence = 1
		ev.PrevHash = ""
	} else {
		ev.Sequence = prev.Sequence + 1
		ev.PrevHash = prev.Hash
	}
	h, err := Hash(ev)
	if err != nil {
		return err
	}
	ev.Hash = h
	return nil
}

// hashInput fixes the field order hashed for an event
type hashInput struct {
	Sequence   uint64          `json:"sequence"`
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ModelID    uint64          `json:"model_id"`
	Actor      string          `json:"actor"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt string          `json:"occurred_at"`
	PrevHash   string          `json:"prev_hash"`
}

// Hash returns the hex SHA-256 of the event's canonical encoding, excluding
// the Hash field itself.
func Hash(ev *models.RegistryEvent) (string, error) {
	buf, err := json.Marshal(hashInput{
		Sequence:   ev.Sequence,
		ID:         ev.ID,
		Type:       string(ev.Type),
		ModelID:    ev.ModelID,
		Actor:      ev.Actor,
		Payload:    ev.Payload,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		PrevHash:   ev.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode event %d for hashing: %w", ev.Sequence, err)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks that evs form an unbroken chain following prev. prev is nil
// when evs starts at the first event of the log.
func Verify(evs []models.RegistryEvent, prev *models.RegistryEvent) error {
	expectSeq := uint64(1)
	expectPrev := ""
	if prev != nil {
		expectSeq = prev.Sequence + 1
		expectPrev = prev.Hash
	}
	for i := range evs {
		ev := &evs[i]
		if ev.Sequence != expectSeq {
			return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, expectSeq, ev.Sequence)
		}
		if ev.PrevHash != expectPrev {
			return fmt.Errorf("%w at sequence %d", ErrBrokenLink, ev.Sequence)
		}
		h, err := Hash(ev)
		if err != nil {
			return err
		}
		if h != ev.Hash {
			return fmt.Errorf("%w at sequence %d", ErrHashMismatch, ev.Sequence)
		}
		expectSeq++
		expectPrev = ev.Hash
	}
	return nil
}

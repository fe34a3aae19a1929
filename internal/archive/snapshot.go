// Package archive defines the registry snapshot format: a point-in-time copy
// of every record and ledger together with the full hash-chained event log
// that produced it. A snapshot is self-verifying: replaying its event log
// must reproduce its state exactly.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
)

// FormatVersion is written into every snapshot produced by this build
const FormatVersion = "1.1.0"

// supportedFormats is the range of snapshot formats Decode accepts. Minor
// versions only add fields.
const supportedFormats = ">= 1.0, < 2.0"

var (
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
	ErrStateMismatch     = errors.New("snapshot state does not match its event log")
)

var formatConstraint = version.MustConstraints(version.NewConstraint(supportedFormats))

// Snapshot is the archived form of the registry
type Snapshot struct {
	FormatVersion string                 `json:"format_version"`
	CreatedAt     time.Time              `json:"created_at"`
	Principal     string                 `json:"principal"`
	State         *events.State          `json:"state"`
	Events        []models.RegistryEvent `json:"events"`
}

// Source is the part of the registry a snapshot is built from
type Source interface {
	Snapshot(ctx context.Context) (*events.State, error)
	Events(ctx context.Context, after uint64, limit int) ([]*models.RegistryEvent, error)
}

// Build captures src. The event log is read up to the state's head so a
// mutation committed between the two reads cannot leak into the snapshot.
func Build(ctx context.Context, src Source, principal string, at time.Time) (*Snapshot, error) {
	st, err := src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := src.Events(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	log := make([]models.RegistryEvent, 0, len(evs))
	for _, ev := range evs {
		if ev.Sequence > st.LastSequence {
			break
		}
		log = append(log, *ev)
	}
	return &Snapshot{
		FormatVersion: FormatVersion,
		CreatedAt:     at.UTC(),
		Principal:     principal,
		State:         st,
		Events:        log,
	}, nil
}

// Key returns the object key for a snapshot taken at sequence seq
func Key(prefix string, seq uint64, at time.Time) string {
	name := fmt.Sprintf("snapshot-%012d-%s.json", seq, at.UTC().Format("20060102T150405Z"))
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Encode serializes s as indented JSON
func Encode(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot and checks that its format is supported
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := CheckFormat(s.FormatVersion); err != nil {
		return nil, err
	}
	if s.State == nil {
		return nil, errors.New("snapshot has no state")
	}
	return &s, nil
}

// CheckFormat reports whether format is a snapshot version this build reads
func CheckFormat(format string) error {
	v, err := version.NewVersion(format)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedFormat, format, err)
	}
	if !formatConstraint.Check(v) {
		return fmt.Errorf("%w: %s (supported %s)", ErrUnsupportedFormat, format, supportedFormats)
	}
	return nil
}

// Verify replays the snapshot's event log and compares the result with its
// recorded state. It returns the number of events replayed.
func Verify(s *Snapshot) (int, error) {
	if err := CheckFormat(s.FormatVersion); err != nil {
		return 0, err
	}
	replayed, err := events.Replay(s.Events)
	if err != nil {
		return 0, fmt.Errorf("event log: %w", err)
	}
	want, err := json.Marshal(s.State)
	if err != nil {
		return 0, err
	}
	got, err := json.Marshal(replayed)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(want, got) {
		return 0, fmt.Errorf("%w at sequence %d", ErrStateMismatch, s.State.LastSequence)
	}
	return len(s.Events), nil
}

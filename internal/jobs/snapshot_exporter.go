// Package jobs holds the registry's background jobs.
//
// snapshot_exporter.go periodically writes a verifiable snapshot of the
// registry to the configured archive backend. An export is skipped when no
// event has been committed since the previous one, so an idle registry does
// not fill the bucket with identical copies.
package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aibom-registry/aibom-registry/internal/archive"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/safego"
	"github.com/aibom-registry/aibom-registry/internal/storage"
	"github.com/aibom-registry/aibom-registry/internal/telemetry"
)

// ExportResult describes one export attempt
type ExportResult struct {
	Key      string          `json:"key,omitempty"`
	Sequence uint64          `json:"sequence"`
	Skipped  bool            `json:"skipped"`
	Object   *storage.Object `json:"object,omitempty"`
}

// SnapshotExporter writes registry snapshots to a storage backend
type SnapshotExporter struct {
	source    archive.Source
	store     storage.Storage
	backend   string
	prefix    string
	principal string
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// mu serializes exports so the scheduled run and an on-demand run never
	// race on lastSequence
	mu           sync.Mutex
	exported     bool
	lastSequence uint64
}

// NewSnapshotExporter creates an exporter. cfg supplies the backend name,
// key prefix and interval.
func NewSnapshotExporter(src archive.Source, store storage.Storage, cfg *config.ArchiveConfig, principal string, logger *slog.Logger) *SnapshotExporter {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &SnapshotExporter{
		source:    src,
		store:     store,
		backend:   cfg.Backend,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		principal: principal,
		interval:  interval,
		logger:    logger.With("job", "snapshot-exporter"),
		now:       time.Now,
	}
}

// Start runs one export immediately and then one per interval until ctx is
// cancelled. The returned channel closes once the loop has exited and no
// export is in flight, the initial one included.
func (e *SnapshotExporter) Start(ctx context.Context) <-chan struct{} {
	e.logger.Info("snapshot exporter started", "backend", e.backend, "interval", e.interval)
	return safego.LoopNow(ctx, "snapshot-exporter", e.interval, func(ctx context.Context) {
		if _, err := e.Export(ctx, false); err != nil {
			e.logger.Error("snapshot export failed", "error", err)
		}
	})
}

// Export writes a snapshot. Unless force is set, it does nothing when the
// event log head has not moved since the last successful export.
func (e *SnapshotExporter) Export(ctx context.Context, force bool) (*ExportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res, err := e.export(ctx, force)
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case res.Skipped:
		status = "skipped"
	}
	telemetry.SnapshotExportsTotal.WithLabelValues(e.backend, status).Inc()
	if status != "skipped" {
		telemetry.SnapshotExportDuration.Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (e *SnapshotExporter) export(ctx context.Context, force bool) (*ExportResult, error) {
	now := e.now()
	snap, err := archive.Build(ctx, e.source, e.principal, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	seq := snap.State.LastSequence
	if !force && e.exported && seq == e.lastSequence {
		e.logger.Debug("registry unchanged since last snapshot, skipping", "sequence", seq)
		return &ExportResult{Sequence: seq, Skipped: true}, nil
	}

	data, err := archive.Encode(snap)
	if err != nil {
		return nil, err
	}
	key := archive.Key(e.prefix, seq, now)
	obj, err := e.store.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}

	e.exported = true
	e.lastSequence = seq
	e.logger.Info("snapshot exported", "key", key, "sequence", seq, "size", obj.Size, "records", len(snap.State.Records))
	return &ExportResult{Key: key, Sequence: seq, Object: obj}, nil
}

// List returns the stored snapshots, oldest first
func (e *SnapshotExporter) List(ctx context.Context) ([]storage.Object, error) {
	prefix := e.prefix
	if prefix != "" {
		prefix += "/"
	}
	objs, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return objs, nil
}

// Load reads and decodes a stored snapshot
func (e *SnapshotExporter) Load(ctx context.Context, key string) (*archive.Snapshot, error) {
	return LoadSnapshot(ctx, e.store, key)
}

// LoadSnapshot reads and decodes the snapshot stored under key
func LoadSnapshot(ctx context.Context, store storage.Storage, key string) (*archive.Snapshot, error) {
	rc, err := store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	defer rc.Close()
	return archive.Decode(rc)
}

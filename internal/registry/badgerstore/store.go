// Package badgerstore is an embedded registry.Store backed by BadgerDB. It
// needs no external database and keeps the registry on local disk, or purely
// in memory when no data directory is configured.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Store implements registry.Store on top of badger transactions
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	dataDir    string
	gcInterval time.Duration
	gcStop     chan struct{}
	gcWg       sync.WaitGroup

	// writers are serialized so concurrent Updates never hit ErrConflict
	writeMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithDataDir persists the store under dir. Without it the store is in-memory.
func WithDataDir(dir string) Option {
	return func(s *Store) { s.dataDir = dir }
}

// WithLogger sets the logger badger's own messages are written to
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithGCInterval sets how often value-log garbage collection runs for an
// on-disk store. Zero disables it.
func WithGCInterval(d time.Duration) Option {
	return func(s *Store) { s.gcInterval = d }
}

// Open opens (or creates) a store
func Open(opts ...Option) (*Store, error) {
	s := &Store{gcInterval: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var bopts badger.Options
	if s.dataDir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		bopts = badger.DefaultOptions(s.dataDir).WithCompression(options.Snappy)
	}
	bopts = bopts.
		WithLogger(newBadgerLogger(s.logger)).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	s.db = db

	if s.dataDir != "" && s.gcInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcWg.Add(1)
		go s.runGC()
	}
	return s, nil
}

func (s *Store) runGC() {
	defer s.gcWg.Done()
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("badger value log GC failed", "error", err)
				}
				break
			}
		case <-s.gcStop:
			return
		}
	}
}

func (s *Store) Update(ctx context.Context, fn func(tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, writable: true})
	})
}

func (s *Store) View(ctx context.Context, fn func(tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

// Close stops garbage collection and closes the database
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcWg.Wait()
		s.gcStop = nil
	}
	return s.db.Close()
}

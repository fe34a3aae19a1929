// Package storage defines the blob store that holds registry snapshot
// archives, and a registry of backends selected by name.
//
// Backends register themselves from an init function in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.ArchiveConfig) (storage.Storage, error) {
//	        return New(&cfg.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so that NewStorage can find it.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and Stat for a missing key
var ErrNotFound = errors.New("object not found")

// Storage is a flat key/value blob store. Keys use forward slashes.
type Storage interface {
	// Put stores the full contents of r under key, replacing any previous object
	Put(ctx context.Context, key string, r io.Reader) (*Object, error)

	// Get opens the object for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns object metadata without reading the contents
	Stat(ctx context.Context, key string) (*Object, error)

	// List returns every object whose key starts with prefix, sorted by key
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Object describes a stored blob
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum,omitempty"` // hex SHA-256, when known
	LastModified time.Time `json:"last_modified"`
}

// ChecksumMetadataKey names the user metadata entry holding the SHA-256 on
// cloud backends
const ChecksumMetadataKey = "sha256"

// Checksum returns the hex SHA-256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

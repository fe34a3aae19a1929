package gcs

import (
	"testing"
	"time"

	"cloud.google.com/go/storage"

	appconfig "github.com/aibom-registry/aibom-registry/internal/config"
	appstorage "github.com/aibom-registry/aibom-registry/internal/storage"
)

// ---------------------------------------------------------------------------
// New(): constructor validation (no GCS connection required)
// ---------------------------------------------------------------------------

func TestNew_MissingBucket(t *testing.T) {
	if _, err := New(&appconfig.GCSStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for missing bucket")
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      appconfig.GCSStorageConfig
		wantErr  bool
		wantOpts int
	}{
		{"default", appconfig.GCSStorageConfig{Bucket: "b"}, false, 0},
		{"default with endpoint", appconfig.GCSStorageConfig{Bucket: "b", Endpoint: "http://localhost:4443"}, false, 1},
		{"workload identity", appconfig.GCSStorageConfig{Bucket: "b", AuthMethod: AuthWorkloadIdentity}, false, 0},
		{"inferred service account", appconfig.GCSStorageConfig{Bucket: "b", CredentialsJSON: `{}`}, false, 1},
		{"service account file", appconfig.GCSStorageConfig{Bucket: "b", AuthMethod: AuthServiceAccount, CredentialsFile: "/tmp/key.json"}, false, 1},
		{"service account without credentials", appconfig.GCSStorageConfig{Bucket: "b", AuthMethod: AuthServiceAccount}, true, 0},
		{"unsupported", appconfig.GCSStorageConfig{Bucket: "b", AuthMethod: "hmac"}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := clientOptions(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("clientOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(opts) != tt.wantOpts {
				t.Errorf("len(opts) = %d, want %d", len(opts), tt.wantOpts)
			}
		})
	}
}

func TestNew_ServiceAccountMissingFile(t *testing.T) {
	// the credentials file is read when the client is built
	_, err := New(&appconfig.GCSStorageConfig{
		Bucket:          "snapshots",
		AuthMethod:      AuthServiceAccount,
		CredentialsFile: "/nonexistent/credentials.json",
	})
	if err == nil {
		t.Error("New() = nil error, want error for unreadable credentials file")
	}
}

// ---------------------------------------------------------------------------
// attribute mapping
// ---------------------------------------------------------------------------

func TestObjectFromAttrs(t *testing.T) {
	updated := time.Date(2026, 4, 2, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	o := objectFromAttrs(&storage.ObjectAttrs{
		Name:     "snapshots/0002.json",
		Size:     42,
		Metadata: map[string]string{appstorage.ChecksumMetadataKey: "abc123"},
		Updated:  updated,
	})
	if o.Key != "snapshots/0002.json" || o.Size != 42 || o.Checksum != "abc123" {
		t.Errorf("object = %+v", o)
	}
	if o.LastModified.Location() != time.UTC || !o.LastModified.Equal(updated) {
		t.Errorf("LastModified = %v, want %v in UTC", o.LastModified, updated)
	}
}

func TestObjectFromAttrs_NoChecksum(t *testing.T) {
	o := objectFromAttrs(&storage.ObjectAttrs{Name: "k"})
	if o.Checksum != "" {
		t.Errorf("Checksum = %q, want empty", o.Checksum)
	}
}

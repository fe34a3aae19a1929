// Package gcs stores snapshot archives in Google Cloud Storage. It supports
// Application Default Credentials, service account keys and Workload
// Identity Federation.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	appconfig "github.com/aibom-registry/aibom-registry/internal/config"
	appstorage "github.com/aibom-registry/aibom-registry/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.ArchiveConfig) (appstorage.Storage, error) {
		return New(&cfg.GCS)
	})
}

// Supported auth methods
const (
	AuthDefault          = "default"
	AuthServiceAccount   = "service_account"
	AuthWorkloadIdentity = "workload_identity"
)

// GCSStorage implements storage.Storage on one bucket
type GCSStorage struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// clientOptions maps the configured auth method to client options. Workload
// identity and the default method both resolve through ADC.
func clientOptions(cfg *appconfig.GCSStorageConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	method := cfg.AuthMethod
	if method == "" {
		method = AuthDefault
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			method = AuthServiceAccount
		}
	}

	switch method {
	case AuthServiceAccount:
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, errors.New("credentials_file or credentials_json is required for service_account auth")
		}
	case AuthDefault, AuthWorkloadIdentity:
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", method)
	}
	return opts, nil
}

// New creates a GCS backend
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

// Put uploads data with its SHA-256 as object metadata
func (s *GCSStorage) Put(ctx context.Context, key string, r io.Reader) (*appstorage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	checksum := appstorage.Checksum(data)

	w := s.object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{appstorage.ChecksumMetadataKey: checksum}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	obj := &appstorage.Object{Key: key, Size: int64(len(data)), Checksum: checksum}
	if attrs := w.Attrs(); attrs != nil {
		obj.LastModified = attrs.Updated.UTC()
	}
	return obj, nil
}

func (s *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, appstorage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return rc, nil
}

func (s *GCSStorage) Stat(ctx context.Context, key string) (*appstorage.Object, error) {
	attrs, err := s.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, appstorage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}
	o := objectFromAttrs(attrs)
	return &o, nil
}

func objectFromAttrs(attrs *storage.ObjectAttrs) appstorage.Object {
	return appstorage.Object{
		Key:          attrs.Name,
		Size:         attrs.Size,
		Checksum:     attrs.Metadata[appstorage.ChecksumMetadataKey],
		LastModified: attrs.Updated.UTC(),
	}
}

func (s *GCSStorage) List(ctx context.Context, prefix string) ([]appstorage.Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []appstorage.Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		out = append(out, objectFromAttrs(attrs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// EnsureBucket creates the bucket in the configured project if it is missing
func (s *GCSStorage) EnsureBucket(ctx context.Context) error {
	bucket := s.client.Bucket(s.bucket)
	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if s.projectID == "" {
		return errors.New("project_id is required to create a bucket")
	}
	if err := bucket.Create(ctx, s.projectID, nil); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

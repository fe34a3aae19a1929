package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

var (
	// ErrInvalidAPIKey covers unknown, mismatched and expired keys alike so
	// callers cannot probe which one applied.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// KeyStore persists API keys. The Postgres API key repository satisfies it;
// MemoryKeyStore serves the memory and badger registry stores.
type KeyStore interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error)
	ListAll(ctx context.Context) ([]*models.APIKey, error)
	Revoke(ctx context.Context, keyID string) (bool, error)
	UpdateLastUsed(ctx context.Context, keyID string) error
}

// IssueAPIKey generates a key for identity, stores its hash and returns the
// plaintext key, which is never retrievable again.
func IssueAPIKey(ctx context.Context, store KeyStore, prefix, identity, name, createdBy string, expiresAt *time.Time) (string, *models.APIKey, error) {
	if identity == "" {
		return "", nil, errors.New("identity is required")
	}
	key, hash, displayPrefix, err := GenerateAPIKey(prefix)
	if err != nil {
		return "", nil, err
	}
	rec := &models.APIKey{
		Identity:  identity,
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: displayPrefix,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
	}
	if err := store.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return key, rec, nil
}

// AuthenticateAPIKey resolves a presented key to its stored record
func AuthenticateAPIKey(ctx context.Context, store KeyStore, presented string, now time.Time) (*models.APIKey, error) {
	if len(presented) < DisplayPrefixLength {
		return nil, ErrInvalidAPIKey
	}
	candidates, err := store.GetByPrefix(ctx, DisplayPrefix(presented))
	if err != nil {
		return nil, err
	}
	for _, k := range candidates {
		if !ValidateAPIKey(presented, k.KeyHash) {
			continue
		}
		if k.IsExpired(now) {
			return nil, ErrInvalidAPIKey
		}
		return k, nil
	}
	return nil, ErrInvalidAPIKey
}

// MemoryKeyStore keeps API keys in process memory
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*models.APIKey
}

// NewMemoryKeyStore creates a store seeded with pre-hashed keys
func NewMemoryKeyStore(seed ...*models.APIKey) *MemoryKeyStore {
	s := &MemoryKeyStore{keys: make(map[string]*models.APIKey)}
	for _, k := range seed {
		c := *k
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		s.keys[c.ID] = &c
	}
	return s
}

func (s *MemoryKeyStore) Create(_ context.Context, key *models.APIKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now().UTC()
	c := *key
	s.mu.Lock()
	s.keys[c.ID] = &c
	s.mu.Unlock()
	return nil
}

func (s *MemoryKeyStore) GetByPrefix(_ context.Context, keyPrefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.APIKey, 0, 1)
	for _, k := range s.keys {
		if k.KeyPrefix == keyPrefix {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryKeyStore) ListAll(_ context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	out := make([]*models.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		c := *k
		out = append(out, &c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryKeyStore) Revoke(_ context.Context, keyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[keyID]; !ok {
		return false, nil
	}
	delete(s.keys, keyID)
	return true, nil
}

func (s *MemoryKeyStore) UpdateLastUsed(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[keyID]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

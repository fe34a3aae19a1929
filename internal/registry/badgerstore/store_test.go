package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/registry/registrytest"
)

func openMemory(t *testing.T) registry.Store {
	t.Helper()
	s, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_InMemory(t *testing.T) {
	registrytest.Run(t, openMemory)
}

func TestStore_OnDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(WithDataDir(dir), WithGCInterval(0))
	require.NoError(t, err)
	f := registrytest.NewFixture(t, s)
	_, err = f.Registry.Register(ctx, registrytest.Developer, "QmX")
	require.NoError(t, err)
	_, err = f.Registry.SubmitForReview(ctx, registrytest.Developer, 0, "QmY")
	require.NoError(t, err)
	before, err := f.Registry.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(WithDataDir(dir), WithGCInterval(0))
	require.NoError(t, err)
	defer s.Close()
	f = registrytest.NewFixture(t, s)

	after, err := f.Registry.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	n, err := f.Registry.VerifyEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// the chain continues from the persisted head
	rec, err := f.Registry.Register(ctx, registrytest.Developer, "QmNext")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.ModelID)
	head, err := f.Registry.EventHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), head.Sequence)
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	err := s.View(ctx, func(tx registry.Tx) error {
		return tx.InsertRecord(ctx, &models.AIBOMRecord{Owner: "dev"})
	})
	assert.ErrorIs(t, err, registry.ErrReadOnly)
}

func TestStore_PingAfterClose(t *testing.T) {
	s, err := Open()
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestKeys_OrderNumerically(t *testing.T) {
	assert.Less(t, string(eventKey(9)), string(eventKey(10)))
	assert.Less(t, string(ledgerKey(kindSubmission, 1, 255)), string(ledgerKey(kindSubmission, 1, 256)))
	assert.Less(t, string(ledgerKey(kindSubmission, 1, 99)), string(ledgerKey(kindSubmission, 2, 0)))
}

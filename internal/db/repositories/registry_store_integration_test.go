//go:build integration

package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/aibom-registry/aibom-registry/internal/db"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/registry/registrytest"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("aibom_registry"),
		tcpostgres.WithUsername("registry"),
		tcpostgres.WithPassword("registry"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable", "timezone=UTC")
	require.NoError(t, err)
	database, err := db.Connect(dsn, 10, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database, "up"))
	return database
}

func TestRegistryStore_Integration(t *testing.T) {
	database := startPostgres(t)

	registrytest.Run(t, func(t *testing.T) registry.Store {
		_, err := database.Exec(`TRUNCATE registry_events, review_decisions, advisories, vulnerabilities, submissions, aibom_records`)
		require.NoError(t, err)
		return NewRegistryStore(sqlx.NewDb(database, "postgres"))
	})
}

func TestMigrations_Integration(t *testing.T) {
	database := startPostgres(t)

	version, dirty, err := db.GetMigrationVersion(database)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(2), version)

	fixed, err := db.ClearDirty(database)
	require.NoError(t, err)
	require.False(t, fixed)

	require.NoError(t, db.RunMigrations(database, "down"))
	require.NoError(t, db.RunMigrations(database, "up"))
}

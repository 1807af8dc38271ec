//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcr/internal/platform/config"
	"tcr/internal/platform/postgres"
	"tcr/pkg/testutil/containers"
)

func TestMigrateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	require.NoError(t, postgres.Migrate(pg.DB))
	require.NoError(t, postgres.Migrate(pg.DB))

	for _, table := range []string{"items", "resolved_disputes", "payouts", "outbox", "audit_events"} {
		var exists bool
		err := pg.DB.QueryRowContext(context.Background(),
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s", table)
	}
}

func TestOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	db, err := postgres.Open(context.Background(), config.DatabaseConfig{URL: pg.DSN, MaxOpenConns: 2})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 2, db.Stats().MaxOpenConnections)

	_, err = postgres.Open(context.Background(), config.DatabaseConfig{URL: "postgres://nobody@127.0.0.1:1/none?sslmode=disable"})
	assert.Error(t, err)
}

package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), "nosuchdriver", "")
	assert.ErrorContains(t, err, "failed to open database")
}

// TestMigrate needs a PostgreSQL instance; set DOND_TEST_DSN to run it.
func TestMigrate(t *testing.T) {
	dsn := os.Getenv("DOND_TEST_DSN")
	if dsn == "" {
		t.Skip("DOND_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := New(ctx, "postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Reset(ctx))
	require.NoError(t, db.Migrate(ctx))
	// Migrations are idempotent
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.CleanData(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_events`).Scan(&count))
	assert.Zero(t, count)
}

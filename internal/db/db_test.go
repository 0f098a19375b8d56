package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/peer-warden/internal/config"
)

func TestNewDatabase_SQLite(t *testing.T) {
	cfg := &config.DBConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "peer.db")}

	conn, cleanup, err := NewDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.Equal(t, DriverSQLite, conn.Driver())

	var tables []string
	err = conn.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	assert.Subset(t, tables, []string{"batches", "submissions", "review_assignments", "reviewer_reports", "passback_targets"})

	// Re-running is a no-op.
	assert.NoError(t, conn.RunMigrations())
}

func TestDataSourceName(t *testing.T) {
	dsn, err := dataSourceName(&config.DBConfig{
		Driver: DriverPostgres, Host: "db", Port: 5432, Username: "u", Password: "p", Database: "peer", SSLMode: "disable",
	})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=peer sslmode=disable", dsn)

	dsn, err = dataSourceName(&config.DBConfig{Driver: DriverSQLite, Path: "/tmp/x.db"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "foreign_keys")

	_, err = dataSourceName(&config.DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

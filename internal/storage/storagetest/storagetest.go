// Package storagetest opens throwaway sqlite-backed stores for tests.
package storagetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/db"
	"github.com/sevigo/peer-warden/internal/storage"
)

// NewStore returns a migrated store in the test's temp directory.
func NewStore(t testing.TB) storage.Store {
	t.Helper()
	cfg := &config.DBConfig{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "peer-warden.db")}
	conn, cleanup, err := db.NewDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return storage.NewStore(conn.DB)
}

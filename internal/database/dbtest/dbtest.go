// Package dbtest opens migrated SQLite-backed clients for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/security"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// New returns a migrated client backed by a fresh SQLite file.
func New(t testing.TB) database.Client {
	t.Helper()

	cfg := config.Default().Common.Database
	cfg.Driver = database.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(&cfg)
	require.NoError(t, err)

	sealer, err := security.NewSealer("")
	require.NoError(t, err)

	client, err := database.NewClient(t.Context(), db, sealer, zaptest.NewLogger(t), true)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

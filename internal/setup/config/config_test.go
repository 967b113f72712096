package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfigFrom(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, dir, "common.toml", "version = 1\n[database]\ndriver = \"sqlite\"\n")
		writeFile(t, dir, "worker.toml", "version = 1\n[sync]\nhorizon_hours = 48\n")

		cfg, err := config.LoadConfigFrom(dir)
		require.NoError(t, err)

		assert.Equal(t, "sqlite", cfg.Common.Database.Driver)
		assert.Equal(t, 48*time.Hour, cfg.Worker.Sync.Horizon())
		assert.Equal(t, 1000, cfg.Worker.Sync.PagePause)
		assert.Equal(t, 5*60*1000, cfg.Worker.Daemon.RateLimitBackoff)
		assert.Equal(t, 15000, cfg.Worker.Tasks.Store.Timeout)
		assert.Equal(t, 30000, cfg.Worker.Tasks.Sync.HeartbeatTimeout)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, dir, "common.toml", "version = 1\n")

		_, err := config.LoadConfigFrom(dir)
		require.ErrorIs(t, err, config.ErrConfigFileNotFound)
	})

	t.Run("missing version", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, dir, "common.toml", "[debug]\nlog_level = \"debug\"\n")
		writeFile(t, dir, "worker.toml", "version = 1\n")

		_, err := config.LoadConfigFrom(dir)
		require.ErrorIs(t, err, config.ErrConfigVersionMissing)
	})

	t.Run("version mismatch", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, dir, "common.toml", "version = 1\n")
		writeFile(t, dir, "worker.toml", "version = 7\n")

		_, err := config.LoadConfigFrom(dir)
		require.ErrorIs(t, err, config.ErrConfigVersionMismatch)
	})
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, 30*24*time.Hour, cfg.Worker.Sync.Horizon())
	assert.Equal(t, 2000, cfg.Worker.Daemon.HistoryThreshold)
	assert.InDelta(t, 1.0, cfg.Common.Remote.RequestsPerSecond, 0.001)
	assert.Equal(t, 120000, cfg.Common.API.DefaultWindow)
}

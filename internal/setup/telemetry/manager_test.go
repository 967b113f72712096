package telemetry_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/robalyx/decelerator/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerWritesSessionLogs(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Common
	cfg.Debug.LogLevel = "debug"
	logDir := t.TempDir()

	m, err := telemetry.NewManager(t.Context(), telemetry.ServiceWorker, logDir, &cfg, "daemon")
	require.NoError(t, err)

	mainLogger, dbLogger, err := m.GetLoggers()
	require.NoError(t, err)

	mainLogger.Info("hello main")
	dbLogger.Debug("hello db")
	m.GetWorkerLogger("daemon_worker_0").Info("hello worker")
	m.Stop()

	for file, want := range map[string]string{
		"main.log":            "hello main",
		"database.log":        "hello db",
		"daemon_worker_0.log": "hello worker",
	} {
		data, err := os.ReadFile(filepath.Join(m.GetCurrentSessionDir(), file))
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), want), file)
	}

	assert.NotEmpty(t, m.GetInstanceID())
}

func TestManagerRotatesSessions(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Common
	cfg.Debug.MaxLogsToKeep = 2
	logDir := t.TempDir()

	for _, name := range []string{"2020-01-01_00-00-00", "2020-01-02_00-00-00", "2020-01-03_00-00-00"} {
		require.NoError(t, os.MkdirAll(filepath.Join(logDir, name), 0o755))
	}

	m, err := telemetry.NewManager(t.Context(), telemetry.ServiceCLI, logDir, &cfg, "")
	require.NoError(t, err)
	defer m.Stop()

	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestServiceTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "worker", telemetry.ServiceWorker.String())
	assert.Equal(t, "rest", telemetry.ServiceREST.String())
	assert.Equal(t, "export", telemetry.ServiceExport.String())
	assert.Equal(t, "cli", telemetry.ServiceCLI.String())
}

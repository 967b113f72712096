package export_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/dbtest"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/export"
	exportCSV "github.com/robalyx/decelerator/internal/export/csv"
	"github.com/robalyx/decelerator/internal/export/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, db database.Client, id, booster string, at time.Time, delay time.Duration) {
	t.Helper()

	ctx := t.Context()

	_, err := db.Model().Notification().InsertNotifications(ctx, []*types.BoostNotification{{
		Domain:         "example.social",
		NotificationID: id,
		UserID:         "1",
		AccountID:      booster,
		PostID:         "50",
		CreatedAt:      at,
	}})
	require.NoError(t, err)

	ok, err := db.Model().Reaction().Resolve(ctx, &types.UserReaction{
		Domain:         "example.social",
		NotificationID: id,
		UserID:         "1",
		AccountID:      booster,
		PostID:         "50",
		ReactionID:     "r" + id,
		CreatedAt:      at,
		ReactedAt:      at.Add(delay),
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExporter_ExportAll(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	seed(t, db, "1000", "b", t0.Add(-48*time.Hour), time.Minute)
	seed(t, db, "1001", "b", t0, 45*time.Second)
	seed(t, db, "1002", "c", t0.Add(time.Hour), 2*time.Minute)

	dir := filepath.Join(t.TempDir(), "out")
	cfg := &export.Config{
		ExportVersion: "test",
		Salt:          "test_salt",
		HashType:      string(export.HashTypeSHA256),
		Iterations:    1,
		Concurrency:   2,
	}

	err := export.New(db, dir, cfg).WithOutput(io.Discard).ExportAll(t.Context(), t0.Add(-time.Hour))
	require.NoError(t, err)

	for _, name := range []string{export.ConfigFileName, sqlite.FileName, exportCSV.FileName} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	data, err := os.ReadFile(filepath.Join(dir, export.ConfigFileName))
	require.NoError(t, err)

	var written map[string]any
	require.NoError(t, sonic.Unmarshal(data, &written))
	assert.Equal(t, export.EngineVersion, written["engineVersion"])
	assert.Equal(t, "sha256", written["hashType"])
	assert.NotContains(t, written, "concurrency")

	raw, err := os.ReadFile(filepath.Join(dir, exportCSV.FileName))
	require.NoError(t, err)

	csvText := string(raw)
	assert.NotContains(t, csvText, "1000,")
	assert.Contains(t, csvText, "1001,")
	assert.Contains(t, csvText, "1002,")
	assert.Contains(t, csvText, export.HashAccount("example.social", "b", "test_salt", export.HashTypeSHA256, 1, 0))
}

func TestExporter_UnsupportedHashType(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	cfg := &export.Config{HashType: "md5", Concurrency: 1}

	err := export.New(db, t.TempDir(), cfg).WithOutput(io.Discard).ExportAll(t.Context(), t0)
	require.ErrorIs(t, err, export.ErrUnsupportedHashType)
}

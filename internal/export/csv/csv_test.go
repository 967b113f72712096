package csv_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	exportCSV "github.com/robalyx/decelerator/internal/export/csv"
	"github.com/robalyx/decelerator/internal/export/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		records []*types.ExportRecord
		want    [][]string
	}{
		{
			name: "basic export",
			records: []*types.ExportRecord{{
				Domain: "example.social", NotificationID: "1001", UserID: "1", AccountHash: "aa", PostID: "50",
				ReactionID: "201", BoostedAt: t0, ReactedAt: t0.Add(45 * time.Second), FromMutual: true,
			}},
			want: [][]string{
				exportCSV.Header,
				{"example.social", "1001", "1", "aa", "50", "201", "2024-05-01T12:00:00Z", "2024-05-01T12:00:45Z", "45", "true"},
			},
		},
		{
			name:    "empty records",
			records: nil,
			want:    [][]string{exportCSV.Header},
		},
		{
			name: "values with separators",
			records: []*types.ExportRecord{{
				Domain: "example.social", NotificationID: "1002", UserID: "1", AccountHash: "with, comma", PostID: "50",
				ReactionID: "\"quoted\"", BoostedAt: t0, ReactedAt: t0.Add(time.Hour),
			}},
			want: [][]string{
				exportCSV.Header,
				{"example.social", "1002", "1", "with, comma", "50", "\"quoted\"", "2024-05-01T12:00:00Z", "2024-05-01T13:00:00Z", "3600", "false"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			require.NoError(t, exportCSV.New(dir).Export(tt.records))
			assert.Equal(t, tt.want, readFile(t, filepath.Join(dir, exportCSV.FileName)))
		})
	}
}

func TestExporter_ExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, exportCSV.FileName), []byte("existing,content\n1,2\n3,4\n"), 0o600))

	require.NoError(t, exportCSV.New(dir).Export(nil))
	assert.Equal(t, [][]string{exportCSV.Header}, readFile(t, filepath.Join(dir, exportCSV.FileName)))
}

// Package csv writes exported reactions to a CSV file.
package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robalyx/decelerator/internal/export/types"
)

// FileName is the name of the written file.
const FileName = "reactions.csv"

// Header lists the written columns.
var Header = []string{
	"domain", "notification_id", "user_id", "account_hash", "post_id", "reaction_id",
	"boosted_at", "reacted_at", "delay_seconds", "from_mutual",
}

// Exporter handles exporting reactions to csv files.
type Exporter struct {
	outDir string
}

// New creates a new csv exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export replaces the reactions file with records.
func (e *Exporter) Export(records []*types.ExportRecord) error {
	file, err := os.Create(filepath.Join(e.outDir, FileName))
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		if err := writer.Write([]string{
			r.Domain,
			r.NotificationID,
			r.UserID,
			r.AccountHash,
			r.PostID,
			r.ReactionID,
			r.BoostedAt.UTC().Format(time.RFC3339),
			r.ReactedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.DelaySeconds(), 'f', 0, 64),
			strconv.FormatBool(r.FromMutual),
		}); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv file: %w", err)
	}

	return nil
}

// Package sqlite writes exported reactions to a standalone SQLite database.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robalyx/decelerator/internal/export/types"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// FileName is the name of the written database.
const FileName = "reactions.db"

// Exporter handles exporting reactions to SQLite databases.
type Exporter struct {
	outDir string
}

// New creates a new SQLite exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export replaces the reactions database with records.
func (e *Exporter) Export(records []*types.ExportRecord) error {
	path := filepath.Join(e.outDir, FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file %s: %w", FileName, err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer conn.Close()

	err = sqlitex.ExecuteScript(conn, `
		CREATE TABLE reactions (
			domain TEXT NOT NULL,
			notification_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			account_hash TEXT NOT NULL,
			post_id TEXT NOT NULL,
			reaction_id TEXT NOT NULL,
			boosted_at TEXT NOT NULL,
			reacted_at TEXT NOT NULL,
			delay_seconds REAL NOT NULL,
			from_mutual INTEGER NOT NULL,
			PRIMARY KEY (domain, notification_id)
		);
		CREATE INDEX reactions_delay ON reactions (delay_seconds);
	`, nil)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Insert records in batches
	const batchSize = 1000
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		if err := insertBatch(conn, records[i:end]); err != nil {
			return err
		}
	}

	return nil
}

func insertBatch(conn *sqlite.Conn, records []*types.ExportRecord) (err error) {
	defer sqlitex.Save(conn)(&err)

	for _, r := range records {
		err = sqlitex.Execute(conn, `
			INSERT INTO reactions (
				domain, notification_id, user_id, account_hash, post_id, reaction_id,
				boosted_at, reacted_at, delay_seconds, from_mutual
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					r.Domain, r.NotificationID, r.UserID, r.AccountHash, r.PostID, r.ReactionID,
					r.BoostedAt.UTC().Format(time.RFC3339), r.ReactedAt.UTC().Format(time.RFC3339),
					r.DelaySeconds(), r.FromMutual,
				},
			})
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	return nil
}

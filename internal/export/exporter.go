package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/export/csv"
	"github.com/robalyx/decelerator/internal/export/sqlite"
	"github.com/robalyx/decelerator/internal/export/types"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ConfigFileName is the name of the written export configuration.
const ConfigFileName = "export_config.json"

// Format represents a supported export format.
type Format string

const (
	FormatSQLite Format = "sqlite"
	FormatCSV    Format = "csv"
)

const (
	// EngineVersion represents the version of the export engine.
	// This should be updated when making breaking changes to the export format.
	EngineVersion = "1.0.0"
)

// Config holds the configuration for exports.
type Config struct {
	ExportVersion string `json:"exportVersion"`
	Salt          string `json:"salt"`
	Description   string `json:"description"`
	HashType      string `json:"hashType"`
	Iterations    uint32 `json:"iterations"`
	Memory        uint32 `json:"memory,omitempty"`
	Concurrency   int64  `json:"-"`
}

// Exporter handles exporting resolved reactions.
type Exporter struct {
	db      database.Client
	outDir  string
	config  *Config
	formats []Format
	out     io.Writer
	printer *message.Printer
}

// New creates a new exporter instance.
func New(db database.Client, outDir string, config *Config) *Exporter {
	return &Exporter{
		db:     db,
		outDir: outDir,
		config: config,
		formats: []Format{
			FormatSQLite,
			FormatCSV,
		},
		out:     os.Stdout,
		printer: message.NewPrinter(language.English),
	}
}

// WithOutput redirects progress output.
func (e *Exporter) WithOutput(w io.Writer) *Exporter {
	e.out = w
	return e
}

// ExportAll exports every reaction boosted at or after since in all supported formats.
func (e *Exporter) ExportAll(ctx context.Context, since time.Time) error {
	switch HashType(e.config.HashType) {
	case HashTypeArgon2id, HashTypeSHA256, HashTypeNone:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedHashType, e.config.HashType)
	}

	// Print export configuration
	e.printf("Starting export with configuration:\n")
	e.printf("  Hash Type: %s\n", e.config.HashType)
	e.printf("  Concurrency: %d workers\n", e.config.Concurrency)
	e.printf("  Iterations: %d\n", e.config.Iterations)

	if e.config.HashType == string(HashTypeArgon2id) {
		e.printf("  Memory: %d MB\n", e.config.Memory)
	}

	e.printf("  Output Directory: %s\n", e.outDir)
	e.printf("  Since: %s\n", since.UTC().Format(time.RFC3339))
	e.printf("  Export Version: %s\n", e.config.ExportVersion)
	e.printf("  Engine Version: %s\n", EngineVersion)
	e.printf("  Description: %s\n\n", e.config.Description)

	e.printf("Fetching reactions from database...\n")

	reactions, err := e.db.Model().Reaction().ListSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to get reactions: %w", err)
	}

	e.printf("Found %d reactions to export\n\n", len(reactions))

	e.printf("Hashing booster accounts...\n")

	accounts := make([]account, len(reactions))
	for i, r := range reactions {
		accounts[i] = account{domain: r.Domain, id: r.AccountID}
	}

	hashes := hashAccounts(accounts, e.config)

	records := make([]*types.ExportRecord, len(reactions))
	for i, r := range reactions {
		records[i] = &types.ExportRecord{
			Domain:         r.Domain,
			NotificationID: r.NotificationID,
			UserID:         r.UserID,
			AccountHash:    hashes[accounts[i]],
			PostID:         r.PostID,
			ReactionID:     r.ReactionID,
			BoostedAt:      r.CreatedAt,
			ReactedAt:      r.ReactedAt,
			FromMutual:     r.FromMutual,
		}
	}

	e.printf("Hashed %d distinct accounts\n\n", len(hashes))

	if err := os.MkdirAll(e.outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Save config file
	e.printf("Saving export configuration...\n")

	// Create config with engine version for JSON
	jsonConfig := struct {
		*Config

		EngineVersion string `json:"engineVersion"`
	}{
		Config:        e.config,
		EngineVersion: EngineVersion,
	}

	configData, err := sonic.MarshalIndent(jsonConfig, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal export config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(e.outDir, ConfigFileName), configData, 0o600); err != nil {
		return fmt.Errorf("failed to write export config: %w", err)
	}

	// Export each format
	e.printf("Exporting data in %d formats...\n", len(e.formats))

	for _, format := range e.formats {
		e.printf("  Writing %s format...\n", format)

		if err := e.export(format, records); err != nil {
			return fmt.Errorf("failed to export %s format: %w", format, err)
		}
	}

	e.printf("\nExport completed successfully\n")
	e.printf("Files written to: %s\n", e.outDir)

	return nil
}

// export handles exporting data in the specified format.
func (e *Exporter) export(format Format, records []*types.ExportRecord) error {
	var exporter interface {
		Export(records []*types.ExportRecord) error
	}

	switch format {
	case FormatSQLite:
		exporter = sqlite.New(e.outDir)
	case FormatCSV:
		exporter = csv.New(e.outDir)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return exporter.Export(records)
}

// printf writes progress output with grouped digits.
func (e *Exporter) printf(format string, args ...any) {
	_, _ = e.printer.Fprintf(e.out, format, args...)
}

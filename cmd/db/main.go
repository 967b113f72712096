package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/robalyx/decelerator/cmd/db/commands"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/migrations"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// Setup dependencies
	db, deps, err := setupMigrator()
	if err != nil {
		return fmt.Errorf("failed to setup migrator: %w", err)
	}
	defer db.Close()

	app := &cli.Command{
		Name:     "db",
		Usage:    "Database management tool",
		Commands: commands.MigrationCommands(deps),
	}

	return app.Run(context.Background(), os.Args)
}

// setupMigrator opens the configured database and creates a migrator for it.
func setupMigrator() (*bun.DB, *commands.CLIDependencies, error) {
	// Load full configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create development logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Connect to database without running migrations
	db, err := database.Open(&cfg.Common.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, &commands.CLIDependencies{
		Migrator: migrate.NewMigrator(db, migrations.Migrations),
		Logger:   logger,
	}, nil
}

package models

import (
	"context"
	"fmt"
	"time"

	"github.com/robalyx/decelerator/internal/database/dbretry"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ServerModel handles database operations for remote servers.
type ServerModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewServer creates a ServerModel.
func NewServer(db *bun.DB, logger *zap.Logger) *ServerModel {
	return &ServerModel{
		db:     db,
		logger: logger.Named("db_server"),
	}
}

// Upsert creates a server or updates its software.
func (m *ServerModel) Upsert(ctx context.Context, server *types.Server) error {
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(server).
			On("CONFLICT (domain) DO UPDATE").
			Set("software = EXCLUDED.software").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert server: %w", err)
		}

		return nil
	})
}

// Get returns the server for a domain.
func (m *ServerModel) Get(ctx context.Context, domain string) (*types.Server, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Server, error) {
		var server types.Server

		err := m.db.NewSelect().
			Model(&server).
			Where("domain = ?", domain).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, notFound(err, types.ErrServerNotFound)
		}

		return &server, nil
	})
}

// List returns every known server.
func (m *ServerModel) List(ctx context.Context) ([]*types.Server, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Server, error) {
		var servers []*types.Server

		err := m.db.NewSelect().
			Model(&servers).
			Order("domain ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list servers: %w", err)
		}

		return servers, nil
	})
}

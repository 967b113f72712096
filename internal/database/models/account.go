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

// AccountModel handles database operations for local accounts.
type AccountModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAccount creates an AccountModel.
func NewAccount(db *bun.DB, logger *zap.Logger) *AccountModel {
	return &AccountModel{
		db:     db,
		logger: logger.Named("db_account"),
	}
}

// Upsert creates or replaces an account credential.
// Replacing a credential re-authorizes the account.
func (m *AccountModel) Upsert(ctx context.Context, account *types.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}

	account.UpdatedAt = now
	account.UnauthorizedAt = time.Time{}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(account).
			On("CONFLICT (domain, account_id) DO UPDATE").
			Set("username = EXCLUDED.username").
			Set("access_token = EXCLUDED.access_token").
			Set("unauthorized_at = NULL").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert account: %w", err)
		}

		m.logger.Debug("Upserted account",
			zap.String("domain", account.Domain),
			zap.String("accountID", account.AccountID))

		return nil
	})
}

// Get returns a single account.
func (m *AccountModel) Get(ctx context.Context, domain, accountID string) (*types.Account, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Account, error) {
		var account types.Account

		err := m.db.NewSelect().
			Model(&account).
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, notFound(err, types.ErrAccountNotFound)
		}

		return &account, nil
	})
}

// ListAuthorized returns the accounts of a domain whose credential was not revoked, newest first.
func (m *AccountModel) ListAuthorized(ctx context.Context, domain string) ([]*types.Account, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Account, error) {
		var accounts []*types.Account

		err := m.db.NewSelect().
			Model(&accounts).
			Where("domain = ?", domain).
			Where("unauthorized_at IS NULL").
			Order("created_at DESC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}

		return accounts, nil
	})
}

// List returns every account, optionally restricted to one domain.
func (m *AccountModel) List(ctx context.Context, domain string) ([]*types.Account, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Account, error) {
		var accounts []*types.Account

		query := m.db.NewSelect().
			Model(&accounts).
			Order("domain ASC", "created_at DESC")
		if domain != "" {
			query.Where("domain = ?", domain)
		}

		if err := query.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}

		return accounts, nil
	})
}

// MarkUnauthorized excludes an account from discovery until its credential is replaced.
func (m *AccountModel) MarkUnauthorized(ctx context.Context, domain, accountID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		res, err := m.db.NewUpdate().
			Model((*types.Account)(nil)).
			Set("unauthorized_at = ?", now).
			Set("updated_at = ?", now).
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Where("unauthorized_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark account unauthorized: %w", err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			m.logger.Warn("Account marked unauthorized",
				zap.String("domain", domain),
				zap.String("accountID", accountID))
		}

		return nil
	})
}

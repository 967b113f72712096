package models

import (
	"context"
	"fmt"
	"time"

	"github.com/robalyx/decelerator/internal/database/dbretry"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"
)

// ReactionModel handles database operations for resolved reactions.
type ReactionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewReaction creates a ReactionModel.
func NewReaction(db *bun.DB, logger *zap.Logger) *ReactionModel {
	return &ReactionModel{
		db:     db,
		logger: logger.Named("db_reaction"),
	}
}

// Resolve writes the reaction and attaches it to its notification in one transaction.
// Returns false when the notification was already resolved, in which case nothing changes.
func (m *ReactionModel) Resolve(ctx context.Context, reaction *types.UserReaction) (bool, error) {
	reaction.CreatedAt = reaction.CreatedAt.UTC()
	reaction.ReactedAt = reaction.ReactedAt.UTC()

	var created bool

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		created = false

		res, err := tx.NewInsert().
			Model(reaction).
			On("CONFLICT (domain, notification_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert reaction: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		res, err = tx.NewUpdate().
			Model((*types.BoostNotification)(nil)).
			Set("reaction_id = ?", reaction.ReactionID).
			Where("domain = ?", reaction.Domain).
			Where("notification_id = ?", reaction.NotificationID).
			Where("reaction_id IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to attach reaction: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			// Either the notification is gone or another writer got there first
			return types.ErrNotificationNotFound
		}

		created = true

		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		m.logger.Debug("Resolved reaction",
			zap.String("domain", reaction.Domain),
			zap.String("notificationID", reaction.NotificationID),
			zap.String("reactionID", reaction.ReactionID))
	}

	return created, nil
}

// Get returns the reaction of a notification.
func (m *ReactionModel) Get(ctx context.Context, domain, notificationID string) (*types.UserReaction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserReaction, error) {
		var reaction types.UserReaction

		err := m.db.NewSelect().
			Model(&reaction).
			Where("domain = ?", domain).
			Where("notification_id = ?", notificationID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, notFound(err, types.ErrReactionNotFound)
		}

		return &reaction, nil
	})
}

// List returns a user's reactions, newest boost first.
func (m *ReactionModel) List(
	ctx context.Context, domain, userID string, filter types.ReactionFilter,
) ([]*types.UserReaction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.UserReaction, error) {
		var reactions []*types.UserReaction

		query := m.db.NewSelect().
			Model(&reactions).
			Where("domain = ?", domain).
			Where("user_id = ?", userID).
			Order("created_at DESC")

		if filter.Window > 0 {
			query.Where(m.delayExpr()+" <= ?", filter.Window.Seconds())
		}

		if filter.MutualOnly {
			query.Where("from_mutual = ?", true)
		}

		if filter.Limit > 0 {
			query.Limit(filter.Limit)
		}

		if err := query.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to list reactions: %w", err)
		}

		return reactions, nil
	})
}

// ListSince returns every reaction whose boost happened at or after since, oldest first.
func (m *ReactionModel) ListSince(ctx context.Context, since time.Time) ([]*types.UserReaction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.UserReaction, error) {
		var reactions []*types.UserReaction

		err := m.db.NewSelect().
			Model(&reactions).
			Where("created_at >= ?", since.UTC()).
			Order("created_at ASC", "domain ASC", "notification_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list reactions: %w", err)
		}

		return reactions, nil
	})
}

// Count returns the number of reactions of a domain.
func (m *ReactionModel) Count(ctx context.Context, domain string) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.UserReaction)(nil)).
			Where("domain = ?", domain).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count reactions: %w", err)
		}

		return count, nil
	})
}

// delayExpr returns the dialect's expression for the reaction delay in seconds.
func (m *ReactionModel) delayExpr() string {
	if m.db.Dialect().Name() == dialect.SQLite {
		return "((julianday(reacted_at) - julianday(created_at)) * 86400.0)"
	}

	return "EXTRACT(EPOCH FROM (reacted_at - created_at))"
}

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

// NotificationModel handles database operations for boost notifications.
type NotificationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewNotification creates a NotificationModel.
func NewNotification(db *bun.DB, logger *zap.Logger) *NotificationModel {
	return &NotificationModel{
		db:     db,
		logger: logger.Named("db_notification"),
	}
}

// InsertNotifications inserts notifications, skipping ones already indexed.
// Existing rows are never touched, so a reaction_id is never regressed.
func (m *NotificationModel) InsertNotifications(
	ctx context.Context, notifications []*types.BoostNotification,
) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}

	for _, n := range notifications {
		n.CreatedAt = n.CreatedAt.UTC()
		n.ReactionID = ""
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		res, err := m.db.NewInsert().
			Model(&notifications).
			On("CONFLICT (domain, notification_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to insert notifications: %w", err)
		}

		inserted, _ := res.RowsAffected()

		return int(inserted), nil
	})
}

// Get returns a single notification.
func (m *NotificationModel) Get(ctx context.Context, domain, notificationID string) (*types.BoostNotification, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("domain = ?", domain).Where("notification_id = ?", notificationID)
	})
}

// FindLatest returns the newest notification indexed for a local user.
func (m *NotificationModel) FindLatest(ctx context.Context, domain, userID string) (*types.BoostNotification, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("user_id = ?", userID).
			OrderExpr("LENGTH(notification_id) DESC, notification_id DESC")
	})
}

// FindOldest returns the oldest notification indexed for a local user.
func (m *NotificationModel) FindOldest(ctx context.Context, domain, userID string) (*types.BoostNotification, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("user_id = ?", userID).
			OrderExpr("LENGTH(notification_id) ASC, notification_id ASC")
	})
}

// ListUnresolved returns the user's notifications without a reaction, newest first.
// When the filter is set, only ids newer than After or older than Before are returned.
func (m *NotificationModel) ListUnresolved(
	ctx context.Context, domain, userID string, filter types.NotificationFilter,
) ([]*types.BoostNotification, error) {
	return m.findMany(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.
			Where("domain = ?", domain).
			Where("user_id = ?", userID).
			Where("reaction_id IS NULL")

		if filter.After != "" || filter.Before != "" {
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				if filter.After != "" {
					q = q.WhereOr(notificationIDNewer, filter.After, filter.After, filter.After)
				}

				if filter.Before != "" {
					q = q.WhereOr(notificationIDOlder, filter.Before, filter.Before, filter.Before)
				}

				return q
			})
		}

		return q.OrderExpr("LENGTH(notification_id) DESC, notification_id DESC")
	})
}

// ListUnresolvedSince returns a domain's notifications without a reaction created at or after since.
func (m *NotificationModel) ListUnresolvedSince(
	ctx context.Context, domain string, since time.Time,
) ([]*types.BoostNotification, error) {
	return m.findMany(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("reaction_id IS NULL").
			Where("created_at >= ?", since.UTC()).
			OrderExpr("LENGTH(notification_id) DESC, notification_id DESC")
	})
}

// Count returns the number of notifications of a domain, optionally only unresolved ones.
func (m *NotificationModel) Count(ctx context.Context, domain string, unresolvedOnly bool) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		query := m.db.NewSelect().
			Model((*types.BoostNotification)(nil)).
			Where("domain = ?", domain)
		if unresolvedOnly {
			query.Where("reaction_id IS NULL")
		}

		count, err := query.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count notifications: %w", err)
		}

		return count, nil
	})
}

func (m *NotificationModel) findOne(
	ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery,
) (*types.BoostNotification, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.BoostNotification, error) {
		var notification types.BoostNotification

		err := apply(m.db.NewSelect().Model(&notification)).Limit(1).Scan(ctx)
		if err != nil {
			return nil, notFound(err, types.ErrNotificationNotFound)
		}

		return &notification, nil
	})
}

func (m *NotificationModel) findMany(
	ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery,
) ([]*types.BoostNotification, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.BoostNotification, error) {
		var notifications []*types.BoostNotification

		if err := apply(m.db.NewSelect().Model(&notifications)).Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to list notifications: %w", err)
		}

		return notifications, nil
	})
}

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

// PostModel handles database operations for the post index.
type PostModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPost creates a PostModel.
func NewPost(db *bun.DB, logger *zap.Logger) *PostModel {
	return &PostModel{
		db:     db,
		logger: logger.Named("db_post"),
	}
}

// InsertPosts inserts posts, skipping ones already indexed.
// Returns the number of rows that were actually inserted.
func (m *PostModel) InsertPosts(ctx context.Context, posts []*types.PostIndex) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	stamp(posts)

	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		res, err := m.db.NewInsert().
			Model(&posts).
			On("CONFLICT (domain, post_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to insert posts: %w", err)
		}

		inserted, _ := res.RowsAffected()

		return int(inserted), nil
	})
}

// UpsertPosts inserts posts or refreshes the payload of ones already indexed.
func (m *PostModel) UpsertPosts(ctx context.Context, posts []*types.PostIndex) error {
	if len(posts) == 0 {
		return nil
	}

	stamp(posts)

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&posts).
			On("CONFLICT (domain, post_id) DO UPDATE").
			Set("visibility = EXCLUDED.visibility").
			Set("data = EXCLUDED.data").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert posts: %w", err)
		}

		return nil
	})
}

// FindAnchor returns the oldest post by accountID that boosts boostOfID.
func (m *PostModel) FindAnchor(ctx context.Context, domain, accountID, boostOfID string) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Where("boost_of_id = ?", boostOfID).
			Order("created_at ASC")
	})
}

// FindFirstOriginalAfter returns the oldest non-boost post by accountID created strictly after t.
func (m *PostModel) FindFirstOriginalAfter(
	ctx context.Context, domain, accountID string, t time.Time,
) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Where("created_at > ?", t.UTC()).
			Where("boost_of_id IS NULL").
			Order("created_at ASC", "post_id ASC")
	})
}

// FindOldest returns the oldest indexed post by accountID.
func (m *PostModel) FindOldest(ctx context.Context, domain, accountID string) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Order("created_at ASC", "post_id ASC")
	})
}

// FindNewest returns the newest indexed post by accountID.
func (m *PostModel) FindNewest(ctx context.Context, domain, accountID string) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Order("created_at DESC", "post_id DESC")
	})
}

// FindLastAtOrBefore returns the newest post by accountID created at or before t.
func (m *PostModel) FindLastAtOrBefore(
	ctx context.Context, domain, accountID string, t time.Time,
) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Where("created_at <= ?", t.UTC()).
			Order("created_at DESC", "post_id DESC")
	})
}

// FindFirstAfter returns the oldest post of any kind by accountID created strictly after t.
func (m *PostModel) FindFirstAfter(
	ctx context.Context, domain, accountID string, t time.Time,
) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("domain = ?", domain).
			Where("account_id = ?", accountID).
			Where("created_at > ?", t.UTC()).
			Order("created_at ASC", "post_id ASC")
	})
}

// Get returns a single post.
func (m *PostModel) Get(ctx context.Context, domain, postID string) (*types.PostIndex, error) {
	return m.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("domain = ?", domain).Where("post_id = ?", postID)
	})
}

// Count returns the number of indexed posts by accountID. An empty accountID counts the whole domain.
func (m *PostModel) Count(ctx context.Context, domain, accountID string) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		query := m.db.NewSelect().
			Model((*types.PostIndex)(nil)).
			Where("domain = ?", domain)
		if accountID != "" {
			query.Where("account_id = ?", accountID)
		}

		count, err := query.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count posts: %w", err)
		}

		return count, nil
	})
}

func (m *PostModel) findOne(
	ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery,
) (*types.PostIndex, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.PostIndex, error) {
		var post types.PostIndex

		err := apply(m.db.NewSelect().Model(&post)).Limit(1).Scan(ctx)
		if err != nil {
			return nil, notFound(err, types.ErrPostNotFound)
		}

		return &post, nil
	})
}

func stamp(posts []*types.PostIndex) {
	now := time.Now().UTC()
	for _, p := range posts {
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = now
	}
}

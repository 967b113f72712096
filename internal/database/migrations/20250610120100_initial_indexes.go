package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/uptrace/bun"
)

type index struct {
	model   any
	name    string
	columns []string
}

var initialIndexes = []index{
	{(*types.PostIndex)(nil), "idx_post_indices_account_time", []string{"domain", "account_id", "created_at"}},
	{(*types.PostIndex)(nil), "idx_post_indices_account_boost", []string{"domain", "account_id", "boost_of_id"}},
	{(*types.BoostNotification)(nil), "idx_boost_notifications_user_time", []string{"domain", "user_id", "created_at"}},
	{(*types.BoostNotification)(nil), "idx_boost_notifications_unresolved", []string{"domain", "reaction_id", "created_at"}},
	{(*types.UserReaction)(nil), "idx_user_reactions_user_time", []string{"domain", "user_id", "created_at"}},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		for _, idx := range initialIndexes {
			_, err := db.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for _, idx := range initialIndexes {
			if _, err := db.NewDropIndex().Index(idx.name).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop index %s: %w", idx.name, err)
			}
		}

		return nil
	})
}

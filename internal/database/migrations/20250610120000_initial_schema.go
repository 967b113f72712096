package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Server)(nil),
			(*types.Account)(nil),
			(*types.PostIndex)(nil),
			(*types.BoostNotification)(nil),
			(*types.UserReaction)(nil),
		}

		for _, model := range models {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.UserReaction)(nil),
			(*types.BoostNotification)(nil),
			(*types.PostIndex)(nil),
			(*types.Account)(nil),
			(*types.Server)(nil),
		}

		for _, model := range models {
			if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table for %T: %w", model, err)
			}
		}

		return nil
	})
}

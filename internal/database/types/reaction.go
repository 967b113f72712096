package types

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var ErrReactionNotFound = errors.New("reaction not found")

// UserReaction is the finalized correlation between a boost and the booster's next post.
type UserReaction struct {
	bun.BaseModel `bun:"table:user_reactions"`

	Domain         string    `bun:",pk"      json:"domain"`
	NotificationID string    `bun:",pk"      json:"notificationId"`
	UserID         string    `bun:",notnull" json:"userId"`
	AccountID      string    `bun:",notnull" json:"accountId"`
	PostID         string    `bun:",notnull" json:"postId"`
	ReactionID     string    `bun:",notnull" json:"reactionId"`
	CreatedAt      time.Time `bun:",notnull" json:"createdAt"` // When the boost happened
	ReactedAt      time.Time `bun:",notnull" json:"reactedAt"` // When the reaction was posted
	FromMutual     bool      `bun:",notnull" json:"fromMutual"`
}

// Delay returns the time between the boost and the reaction.
func (r *UserReaction) Delay() time.Duration {
	return r.ReactedAt.Sub(r.CreatedAt)
}

// ReactionFilter restricts reaction listings.
type ReactionFilter struct {
	// Window keeps reactions whose delay is at most this long. Zero disables the filter.
	Window     time.Duration
	MutualOnly bool
	Limit      int
}

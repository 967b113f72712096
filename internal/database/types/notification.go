package types

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var ErrNotificationNotFound = errors.New("notification not found")

// BoostNotification tells a local user that one of their posts was boosted.
type BoostNotification struct {
	bun.BaseModel `bun:"table:boost_notifications"`

	Domain         string         `bun:",pk"       json:"domain"`
	NotificationID string         `bun:",pk"       json:"notificationId"`
	UserID         string         `bun:",notnull"  json:"userId"`    // Local account that authored the boosted post
	AccountID      string         `bun:",notnull"  json:"accountId"` // Booster
	PostID         string         `bun:",notnull"  json:"postId"`    // Boosted post
	CreatedAt      time.Time      `bun:",notnull"  json:"createdAt"`
	ReactionID     string         `bun:",nullzero" json:"reactionId"`
	Data           map[string]any `bun:"data"      json:"data"`
}

// Resolved reports whether a reaction was already attached.
func (n *BoostNotification) Resolved() bool {
	return n.ReactionID != ""
}

// NotificationFilter restricts unresolved notification listings to ids
// strictly newer than After and/or strictly older than Before.
type NotificationFilter struct {
	After  string
	Before string
}

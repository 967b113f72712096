package types

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var ErrPostNotFound = errors.New("post not found")

// PostIndex is a cached copy of one remote post.
type PostIndex struct {
	bun.BaseModel `bun:"table:post_indices"`

	Domain     string         `bun:",pk"       json:"domain"`
	PostID     string         `bun:",pk"       json:"postId"`
	AccountID  string         `bun:",notnull"  json:"accountId"`
	BoostOfID  string         `bun:",nullzero" json:"boostOfId"` // Set when this post boosts another one
	Visibility string         `bun:",notnull"  json:"visibility"`
	CreatedAt  time.Time      `bun:",notnull"  json:"createdAt"`
	Data       map[string]any `bun:"data"      json:"data"`
	UpdatedAt  time.Time      `bun:",notnull"  json:"updatedAt"`
}

// IsBoost reports whether the post is itself a boost.
func (p *PostIndex) IsBoost() bool {
	return p.BoostOfID != ""
}

package types

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountUnauthorized = errors.New("account credential was revoked")
)

// Account is a local user with a credential for its remote server.
type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	Domain         string    `bun:",pk"       json:"domain"`
	AccountID      string    `bun:",pk"       json:"accountId"`
	Username       string    `bun:",notnull"  json:"username"`
	AccessToken    string    `bun:",notnull"  json:"-"` // Sealed access token
	UnauthorizedAt time.Time `bun:",nullzero" json:"unauthorizedAt"`
	CreatedAt      time.Time `bun:",notnull"  json:"createdAt"`
	UpdatedAt      time.Time `bun:",notnull"  json:"updatedAt"`
}

// Authorized reports whether the credential was not revoked.
func (a *Account) Authorized() bool {
	return a.UnauthorizedAt.IsZero()
}

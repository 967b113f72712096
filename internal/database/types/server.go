package types

import (
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrServerNotFound      = errors.New("server not found")
	ErrUnsupportedSoftware = errors.New("unsupported server software")
)

// ServerSoftware identifies the software a remote server runs.
type ServerSoftware string

const (
	SoftwareMastodon ServerSoftware = "MASTODON"
	SoftwareMisskey  ServerSoftware = "MISSKEY"
)

// ParseSoftware validates a software name, case-insensitively.
func ParseSoftware(s string) (ServerSoftware, error) {
	switch ServerSoftware(strings.ToUpper(s)) {
	case SoftwareMastodon:
		return SoftwareMastodon, nil
	case SoftwareMisskey:
		return SoftwareMisskey, nil
	default:
		return "", ErrUnsupportedSoftware
	}
}

// Server is a remote server that local accounts live on.
type Server struct {
	bun.BaseModel `bun:"table:servers"`

	Domain    string         `bun:",pk"      json:"domain"`
	Software  ServerSoftware `bun:",notnull" json:"software"`
	CreatedAt time.Time      `bun:",notnull" json:"createdAt"`
}

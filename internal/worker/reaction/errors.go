package reaction

import (
	"errors"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
)

var (
	// ErrNotificationNotFound is returned when the notification is not indexed. It is terminal.
	ErrNotificationNotFound = types.ErrNotificationNotFound
	// ErrAnchorNotFound is returned when the boost itself cannot be found in the booster's posts.
	ErrAnchorNotFound = errors.New("boost anchor not found")
	// ErrReactionNotFound is returned when the booster has not posted since boosting.
	ErrReactionNotFound = errors.New("no reaction posted yet")
	// ErrRateLimited is returned when a sync stopped early because of the remote quota.
	ErrRateLimited = errors.New("rate limited while resolving")
)

// IsSoft reports whether resolving may succeed on a later pass.
func IsSoft(err error) bool {
	return errors.Is(err, ErrAnchorNotFound) ||
		errors.Is(err, ErrReactionNotFound) ||
		errors.Is(err, ErrRateLimited)
}

// IsTerminal reports whether retrying the notification is pointless.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotificationNotFound) || errors.Is(err, fediverse.ErrUnauthorized)
}

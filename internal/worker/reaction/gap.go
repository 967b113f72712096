package reaction

import (
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
	feedsync "github.com/robalyx/decelerator/internal/worker/sync"
)

// GapKind classifies how the indexed posts of a booster relate to the search pointer.
type GapKind int

const (
	// GapEmpty means nothing is indexed for the booster.
	GapEmpty GapKind = iota
	// GapForward means every indexed post is at or before the pointer.
	GapForward
	// GapBackward means every indexed post is after the pointer.
	GapBackward
	// GapWindow means indexed posts straddle the pointer with a gap around it.
	GapWindow
)

func (k GapKind) String() string {
	switch k {
	case GapEmpty:
		return "empty"
	case GapForward:
		return "forward"
	case GapBackward:
		return "backward"
	case GapWindow:
		return "window"
	default:
		return "unknown"
	}
}

// Gap is a planned sync.
type Gap struct {
	Kind   GapKind
	Cursor feedsync.Cursor
	// Next is the post right after the pointer, set for windows.
	Next *types.PostIndex
}

// PlanGap decides which part of the booster's timeline to fetch next.
// oldest and newest bound the indexed posts, before and after are the
// nearest posts at or before and strictly after the pointer. Missing posts are nil.
func PlanGap(pointer time.Time, oldest, newest, before, after *types.PostIndex) Gap {
	switch {
	case oldest == nil || newest == nil:
		return Gap{Kind: GapEmpty}
	case !newest.CreatedAt.After(pointer):
		return Gap{Kind: GapForward, Cursor: feedsync.Cursor{After: newest.PostID}}
	case oldest.CreatedAt.After(pointer):
		return Gap{Kind: GapBackward, Cursor: feedsync.Cursor{Before: oldest.PostID}}
	default:
		// newest is after the pointer and oldest at or before it, so both neighbours exist
		return Gap{
			Kind:   GapWindow,
			Cursor: feedsync.Cursor{After: before.PostID, Before: after.PostID},
			Next:   after,
		}
	}
}

// Stretch widens a window so it ends at newest instead of the next indexed post.
// Other kinds are returned unchanged.
func (g Gap) Stretch(newest *types.PostIndex) Gap {
	if g.Kind != GapWindow || newest == nil {
		return g
	}

	g.Cursor.Before = newest.PostID
	g.Next = newest

	return g
}

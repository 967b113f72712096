package reaction_test

import (
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/worker/reaction"
	feedsync "github.com/robalyx/decelerator/internal/worker/sync"
	"github.com/stretchr/testify/assert"
)

func indexed(id string, at time.Time) *types.PostIndex {
	return &types.PostIndex{PostID: id, CreatedAt: at}
}

func TestPlanGap(t *testing.T) {
	t.Parallel()

	pointer := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	early := indexed("10", pointer.Add(-time.Hour))
	atPointer := indexed("11", pointer)
	late := indexed("20", pointer.Add(time.Hour))
	later := indexed("21", pointer.Add(2*time.Hour))

	tests := []struct {
		name                          string
		oldest, newest, before, after *types.PostIndex
		kind                          reaction.GapKind
		cursor                        feedsync.Cursor
	}{
		{"nothing indexed", nil, nil, nil, nil, reaction.GapEmpty, feedsync.Cursor{}},
		{"index ends before pointer", early, early, early, nil, reaction.GapForward, feedsync.Cursor{After: "10"}},
		{"index ends at pointer", early, atPointer, atPointer, nil, reaction.GapForward, feedsync.Cursor{After: "11"}},
		{"index starts after pointer", late, later, nil, late, reaction.GapBackward, feedsync.Cursor{Before: "20"}},
		{"index straddles pointer", early, later, atPointer, late, reaction.GapWindow, feedsync.Cursor{After: "11", Before: "20"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gap := reaction.PlanGap(pointer, tt.oldest, tt.newest, tt.before, tt.after)
			assert.Equal(t, tt.kind, gap.Kind)
			assert.Equal(t, tt.cursor, gap.Cursor)
		})
	}
}

// Each verified window moves the pointer to the window's upper end, so the
// remaining gaps shrink until the plan becomes a forward walk.
func TestPlanGapConverges(t *testing.T) {
	t.Parallel()

	anchor := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	posts := []*types.PostIndex{
		indexed("10", anchor),
		indexed("11", anchor.Add(time.Minute)),
		indexed("12", anchor.Add(2*time.Minute)),
		indexed("13", anchor.Add(3*time.Minute)),
	}

	pointer := anchor
	remaining := len(posts)

	var kinds []reaction.GapKind

	for range len(posts) + 1 {
		var before, after *types.PostIndex

		for _, p := range posts {
			if !p.CreatedAt.After(pointer) {
				before = p
			} else if after == nil {
				after = p
			}
		}

		gap := reaction.PlanGap(pointer, posts[0], posts[len(posts)-1], before, after)
		kinds = append(kinds, gap.Kind)

		if gap.Kind != reaction.GapWindow {
			break
		}

		next := 0
		for _, p := range posts {
			if p.CreatedAt.After(gap.Next.CreatedAt) {
				next++
			}
		}

		assert.Less(t, next, remaining)
		remaining = next
		pointer = gap.Next.CreatedAt
	}

	assert.Equal(t, []reaction.GapKind{
		reaction.GapWindow, reaction.GapWindow, reaction.GapWindow, reaction.GapForward,
	}, kinds)
}

func TestGapStretch(t *testing.T) {
	t.Parallel()

	pointer := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	before := indexed("10", pointer)
	after := indexed("11", pointer.Add(time.Minute))
	newest := indexed("40", pointer.Add(time.Hour))

	window := reaction.PlanGap(pointer, before, newest, before, after).Stretch(newest)
	assert.Equal(t, reaction.GapWindow, window.Kind)
	assert.Equal(t, feedsync.Cursor{After: "10", Before: "40"}, window.Cursor)
	assert.Equal(t, "40", window.Next.PostID)

	forward := reaction.PlanGap(pointer, before, before, before, nil)
	assert.Equal(t, forward, forward.Stretch(newest))
}

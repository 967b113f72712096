package sync

import (
	"context"
	"errors"
	"time"

	"github.com/robalyx/decelerator/internal/durable"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/pkg/utils"
	"go.uber.org/zap"
)

// Cursor bounds a walk. After walks forward from an id towards the present,
// Before walks backward from an id into history, both walk the window between them
// and neither walks backward from the present.
type Cursor struct {
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
}

// Forward reports whether the walk moves towards the present.
func (c Cursor) Forward() bool {
	return c.After != ""
}

// Result summarizes a walk.
type Result struct {
	Pages    int
	Fetched  int
	Inserted int
	// RateLimited is set when the walk stopped early because of the remote quota.
	// Everything fetched before was merged and Cursor resumes right after it.
	RateLimited bool
	RetryAfter  time.Duration
	// Cursor resumes the walk where it stopped.
	Cursor Cursor
}

func (r *Result) add(other *Result) {
	r.Pages += other.Pages
	r.Fetched += other.Fetched
	r.Inserted += other.Inserted
	r.RateLimited = r.RateLimited || other.RateLimited
	r.RetryAfter = max(r.RetryAfter, other.RetryAfter)
	r.Cursor = other.Cursor
}

// page is what one fetched and merged page reports back to the walker.
type page struct {
	// ids of the items that belong to the listed timeline
	ids []string
	// oldest creation time among those items
	oldest time.Time
	// items returned, including embedded ones
	fetched  int
	inserted int
}

type fetchFunc func(ctx context.Context, p fediverse.Page) (page, error)

// walk pages through a remote timeline starting at cursor and merges each page.
func (s *Syncer) walk(ctx context.Context, name string, cursor Cursor, fetch fetchFunc) (*Result, error) {
	var (
		result  = &Result{Cursor: cursor}
		horizon = time.Now().Add(-s.cfg.Horizon())
		logger  = s.logger.With(zap.String("walk", name), zap.String("after", cursor.After), zap.String("before", cursor.Before))
	)

	for result.Pages < s.cfg.MaxPages {
		p, err := fetch(ctx, s.nextPage(result.Cursor))
		if err != nil {
			// A quota refusal ends the walk with what was merged so far
			if errors.Is(err, fediverse.ErrRateLimited) {
				result.RateLimited = true
				result.RetryAfter = fediverse.RetryAfter(err)

				logger.Info("Rate limited, stopping walk early",
					zap.Int("pages", result.Pages),
					zap.Int("inserted", result.Inserted),
					zap.Duration("retryAfter", result.RetryAfter))

				return result, nil
			}

			if fediverse.IsPermanent(err) {
				return result, durable.NonRetryable(err)
			}

			return result, err
		}

		// The page is merged by now
		result.Pages++
		result.Fetched += p.fetched
		result.Inserted += p.inserted

		if len(p.ids) == 0 {
			break
		}

		// Move the cursor past the page before deciding whether to go on
		oldest, newest := fediverse.IDBounds(p.ids)
		done := s.advance(&result.Cursor, cursor, oldest, newest, p, horizon)

		logger.Debug("Merged page",
			zap.Int("page", result.Pages),
			zap.Int("items", len(p.ids)),
			zap.Int("inserted", p.inserted),
			zap.String("oldest", oldest),
			zap.String("newest", newest))

		if done {
			break
		}

		durable.Heartbeat(ctx)

		// Pause between pages to stay under the server's quota
		if utils.ContextSleep(ctx, s.pagePause) == utils.SleepCancelled {
			return result, ctx.Err()
		}
	}

	return result, nil
}

// nextPage turns a cursor into a page request. Windows are walked forward from
// their lower bound because servers disagree on which end of a two-sided page they return.
func (s *Syncer) nextPage(c Cursor) fediverse.Page {
	if c.After != "" {
		return fediverse.Page{MinID: c.After, Limit: s.pageSize}
	}

	return fediverse.Page{MaxID: c.Before, Limit: s.pageSize}
}

// advance moves the cursor past a merged page and reports whether the walk is complete.
func (s *Syncer) advance(c *Cursor, start Cursor, oldest, newest string, p page, horizon time.Time) bool {
	short := len(p.ids) < s.pageSize

	switch {
	case start.After != "" && start.Before != "":
		c.After = newest

		return short || fediverse.CompareIDs(newest, start.Before) >= 0
	case start.After != "":
		c.After = newest

		// A partly known page means the rest is known too
		return short || p.inserted < s.pageSize
	default:
		c.Before = oldest

		return short || p.inserted < s.pageSize || (!p.oldest.IsZero() && p.oldest.Before(horizon))
	}
}

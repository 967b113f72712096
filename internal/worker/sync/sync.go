// Package sync pulls remote timelines into the local index.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/durable"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/setup/config"
	"go.uber.org/zap"
)

// NotificationSyncInput selects a notification walk for a local account.
type NotificationSyncInput struct {
	Credential fediverse.Credential
	UserID     string
	Cursor     Cursor
}

// PostSyncInput selects a post walk for any account.
type PostSyncInput struct {
	Credential fediverse.Credential
	AccountID  string
	Cursor     Cursor
}

// AccountResult is the outcome of a two-pass notification sync.
type AccountResult struct {
	Result
	// Known holds the newest and oldest ids indexed before the sync.
	// Unresolved notifications outside it were discovered by this sync.
	Known types.NotificationFilter
}

// Syncer runs the sync activities.
type Syncer struct {
	db        database.Client
	factory   fediverse.Factory
	cfg       config.Sync
	pageSize  int
	pagePause time.Duration
	logger    *zap.Logger
}

// New creates a Syncer.
func New(db database.Client, factory fediverse.Factory, cfg config.Sync, pageSize int, logger *zap.Logger) *Syncer {
	return &Syncer{
		db:        db,
		factory:   factory,
		cfg:       cfg,
		pageSize:  max(pageSize, 1),
		pagePause: config.Millis(cfg.PagePause),
		logger:    logger.Named("sync"),
	}
}

// SyncNotifications walks the boost notifications of a local account.
func (s *Syncer) SyncNotifications(ctx context.Context, in NotificationSyncInput) (*Result, error) {
	client, err := s.client(in.Credential)
	if err != nil {
		return nil, err
	}

	notifications := s.db.Model().Notification()

	return s.walk(ctx, "notifications", in.Cursor, func(ctx context.Context, p fediverse.Page) (page, error) {
		items, err := client.ListNotifications(ctx, p)
		if err != nil {
			return page{}, err
		}

		rows := make([]*types.BoostNotification, 0, len(items))
		out := page{ids: make([]string, 0, len(items)), fetched: len(items)}

		for _, n := range items {
			rows = append(rows, &types.BoostNotification{
				Domain:         in.Credential.Domain,
				NotificationID: n.ID,
				UserID:         in.UserID,
				AccountID:      n.AccountID,
				PostID:         n.PostID,
				CreatedAt:      n.CreatedAt,
				Data:           n.Raw,
			})

			out.ids = append(out.ids, n.ID)
			if out.oldest.IsZero() || n.CreatedAt.Before(out.oldest) {
				out.oldest = n.CreatedAt
			}
		}

		out.inserted, err = notifications.InsertNotifications(ctx, rows)
		if err != nil {
			return page{}, err
		}

		return out, nil
	})
}

// SyncPosts walks the posts authored by an account.
func (s *Syncer) SyncPosts(ctx context.Context, in PostSyncInput) (*Result, error) {
	client, err := s.client(in.Credential)
	if err != nil {
		return nil, err
	}

	posts := s.db.Model().Post()

	return s.walk(ctx, "posts:"+in.AccountID, in.Cursor, func(ctx context.Context, p fediverse.Page) (page, error) {
		items, err := client.ListPosts(ctx, in.AccountID, p)
		if err != nil {
			return page{}, err
		}

		out := page{ids: make([]string, 0, len(items)), fetched: len(items)}
		primary := make([]*types.PostIndex, 0, len(items))
		seen := make(map[string]struct{}, len(items))

		// Timeline items first, so a post that is also embedded elsewhere on the page counts as the account's own
		for _, post := range items {
			if post.Embedded {
				continue
			}

			if _, ok := seen[post.ID]; ok {
				continue
			}
			seen[post.ID] = struct{}{}

			primary = append(primary, indexRow(in.Credential.Domain, post))

			out.ids = append(out.ids, post.ID)
			if out.oldest.IsZero() || post.CreatedAt.Before(out.oldest) {
				out.oldest = post.CreatedAt
			}
		}

		// Boosted originals ride along but never count towards the known-data check
		embedded := make([]*types.PostIndex, 0, len(items)-len(primary))
		for _, post := range items {
			if !post.Embedded {
				continue
			}

			if _, ok := seen[post.ID]; ok {
				continue
			}
			seen[post.ID] = struct{}{}

			embedded = append(embedded, indexRow(in.Credential.Domain, post))
		}

		if _, err := posts.InsertPosts(ctx, embedded); err != nil {
			return page{}, err
		}

		out.inserted, err = posts.InsertPosts(ctx, primary)
		if err != nil {
			return page{}, err
		}

		return out, nil
	})
}

// SyncAccountNotifications brings a local account's notifications up to date:
// forward from the newest indexed notification, then backward from the oldest one.
// Without any indexed notification it walks backward from the present.
func (s *Syncer) SyncAccountNotifications(
	ctx context.Context, cred fediverse.Credential, userID string,
) (*AccountResult, error) {
	model := s.db.Model().Notification()

	latest, err := model.FindLatest(ctx, cred.Domain, userID)
	if errors.Is(err, types.ErrNotificationNotFound) {
		res, err := s.SyncNotifications(ctx, NotificationSyncInput{Credential: cred, UserID: userID})
		if err != nil {
			return nil, err
		}

		return &AccountResult{Result: *res}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load latest notification: %w", err)
	}

	oldest, err := model.FindOldest(ctx, cred.Domain, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load oldest notification: %w", err)
	}

	out := &AccountResult{Known: types.NotificationFilter{After: latest.NotificationID, Before: oldest.NotificationID}}

	forward, err := s.SyncNotifications(ctx, NotificationSyncInput{
		Credential: cred, UserID: userID, Cursor: Cursor{After: latest.NotificationID},
	})
	if err != nil {
		return nil, err
	}

	out.add(forward)

	if forward.RateLimited {
		return out, nil
	}

	backward, err := s.SyncNotifications(ctx, NotificationSyncInput{
		Credential: cred, UserID: userID, Cursor: Cursor{Before: oldest.NotificationID},
	})
	if err != nil {
		return nil, err
	}

	out.add(backward)

	return out, nil
}

// SyncAccountPosts is the two-pass sync for the posts of an account.
func (s *Syncer) SyncAccountPosts(ctx context.Context, cred fediverse.Credential, accountID string) (*Result, error) {
	model := s.db.Model().Post()

	newest, err := model.FindNewest(ctx, cred.Domain, accountID)
	if errors.Is(err, types.ErrPostNotFound) {
		return s.SyncPosts(ctx, PostSyncInput{Credential: cred, AccountID: accountID})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load newest post: %w", err)
	}

	oldest, err := model.FindOldest(ctx, cred.Domain, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load oldest post: %w", err)
	}

	out := &Result{}

	forward, err := s.SyncPosts(ctx, PostSyncInput{Credential: cred, AccountID: accountID, Cursor: Cursor{After: newest.PostID}})
	if err != nil {
		return nil, err
	}

	out.add(forward)

	if forward.RateLimited {
		return out, nil
	}

	backward, err := s.SyncPosts(ctx, PostSyncInput{Credential: cred, AccountID: accountID, Cursor: Cursor{Before: oldest.PostID}})
	if err != nil {
		return nil, err
	}

	out.add(backward)

	return out, nil
}

func (s *Syncer) client(cred fediverse.Credential) (fediverse.Client, error) {
	client, err := s.factory.NewClient(cred)
	if err != nil {
		return nil, durable.NonRetryable(fmt.Errorf("failed to create client for %s: %w", cred.Domain, err))
	}

	return client, nil
}

func indexRow(domain string, post fediverse.Post) *types.PostIndex {
	return &types.PostIndex{
		Domain:     domain,
		PostID:     post.ID,
		AccountID:  post.AccountID,
		BoostOfID:  post.BoostOfID,
		Visibility: post.Visibility,
		CreatedAt:  post.CreatedAt,
		Data:       post.Raw,
	}
}

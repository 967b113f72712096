// Package reaction correlates boost notifications with the booster's next original post.
package reaction

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
	feedsync "github.com/robalyx/decelerator/internal/worker/sync"
	"github.com/robalyx/decelerator/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ResolveInput selects the notification to resolve.
type ResolveInput struct {
	Domain         string
	NotificationID string
}

// ResolvedFunc is called once for every newly written reaction.
type ResolvedFunc func(ctx context.Context, reaction *types.UserReaction)

// Resolver runs the correlation algorithm.
type Resolver struct {
	db         database.Client
	syncer     *feedsync.Syncer
	factory    fediverse.Factory
	cfg        config.Reaction
	tasks      config.Tasks
	onResolved ResolvedFunc
	group      singleflight.Group
	logger     *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(
	db database.Client, syncer *feedsync.Syncer, factory fediverse.Factory,
	cfg config.Reaction, tasks config.Tasks, logger *zap.Logger,
) *Resolver {
	return &Resolver{
		db:      db,
		syncer:  syncer,
		factory: factory,
		cfg:     cfg,
		tasks:   tasks,
		logger:  logger.Named("reaction"),
	}
}

// OnResolved sets the hook called after a reaction was written.
func (r *Resolver) OnResolved(fn ResolvedFunc) {
	r.onResolved = fn
}

// Resolve finds and stores the reaction to a boost notification.
// Concurrent calls for the same notification share one run.
func (r *Resolver) Resolve(ctx context.Context, runner *durable.Runner, in ResolveInput) (*types.UserReaction, error) {
	key := in.Domain + "/" + in.NotificationID

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolve(ctx, runner, in)
	})
	if err != nil {
		return nil, err
	}

	return v.(*types.UserReaction), nil
}

// state carries one resolution through its steps.
type state struct {
	notification *types.BoostNotification
	cred         fediverse.Credential
	runner       *durable.Runner
	logger       *zap.Logger
}

func (r *Resolver) resolve(ctx context.Context, runner *durable.Runner, in ResolveInput) (*types.UserReaction, error) {
	models := r.db.Model()

	n, err := models.Notification().Get(ctx, in.Domain, in.NotificationID)
	if err != nil {
		return nil, err
	}

	if n.Resolved() {
		return models.Reaction().Get(ctx, n.Domain, n.NotificationID)
	}

	cred, err := r.db.Service().Account().Credential(ctx, n.Domain, n.UserID)
	if err != nil {
		if errors.Is(err, types.ErrAccountUnauthorized) || errors.Is(err, types.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %w", fediverse.ErrUnauthorized, err)
		}

		return nil, err
	}

	s := &state{
		notification: n,
		cred:         fediverse.Credential{Domain: cred.Domain, Software: cred.Software, Token: cred.Token},
		runner:       runner,
		logger: r.logger.With(
			zap.String("domain", n.Domain),
			zap.String("notificationID", n.NotificationID),
			zap.String("booster", n.AccountID)),
	}

	reaction, err := r.run(ctx, s)
	if errors.Is(err, fediverse.ErrUnauthorized) {
		if markErr := models.Account().MarkUnauthorized(ctx, n.Domain, n.UserID); markErr != nil {
			s.logger.Error("Failed to mark account unauthorized", zap.Error(markErr))
		}
	}

	return reaction, err
}

func (r *Resolver) run(ctx context.Context, s *state) (*types.UserReaction, error) {
	anchor, err := r.findAnchor(ctx, s)
	if err != nil {
		return nil, err
	}

	candidate, err := r.findCandidate(ctx, s, anchor)
	if err != nil {
		return nil, err
	}

	return r.store(ctx, s, candidate)
}

// findAnchor locates the boost in the booster's posts, syncing once when it is missing.
func (r *Resolver) findAnchor(ctx context.Context, s *state) (*types.PostIndex, error) {
	posts := r.db.Model().Post()
	n := s.notification

	anchor, err := posts.FindAnchor(ctx, n.Domain, n.AccountID, n.PostID)
	if err == nil {
		return anchor, nil
	}

	if !errors.Is(err, types.ErrPostNotFound) {
		return nil, err
	}

	// The boost was posted when the notification arrived, so fill the index around that moment
	gap, err := r.planGap(ctx, n, n.CreatedAt, false)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Anchor missing, syncing booster posts",
		zap.Stringer("kind", gap.Kind),
		zap.String("after", gap.Cursor.After),
		zap.String("before", gap.Cursor.Before))

	if _, err := r.sync(ctx, s, gap.Cursor); err != nil {
		return nil, err
	}

	anchor, err = posts.FindAnchor(ctx, n.Domain, n.AccountID, n.PostID)
	if errors.Is(err, types.ErrPostNotFound) {
		return nil, ErrAnchorNotFound
	}

	return anchor, err
}

// findCandidate searches the first original post after the anchor, filling index gaps as needed.
func (r *Resolver) findCandidate(ctx context.Context, s *state, anchor *types.PostIndex) (*types.PostIndex, error) {
	posts := r.db.Model().Post()
	n := s.notification
	pointer := anchor.CreatedAt
	stretch := false

	for iteration := range r.cfg.MaxIterations {
		// Answer from the index when it already holds an original after the boost
		candidate, err := posts.FindFirstOriginalAfter(ctx, n.Domain, n.AccountID, anchor.CreatedAt)
		if err == nil {
			return candidate, nil
		}

		if !errors.Is(err, types.ErrPostNotFound) {
			return nil, err
		}

		// Everything up to pointer is known to be boosts, fetch what comes next
		gap, err := r.planGap(ctx, n, pointer, stretch)
		if err != nil {
			return nil, err
		}

		s.logger.Debug("Syncing gap",
			zap.Int("iteration", iteration),
			zap.Stringer("kind", gap.Kind),
			zap.String("after", gap.Cursor.After),
			zap.String("before", gap.Cursor.Before))

		res, err := r.sync(ctx, s, gap.Cursor)
		if err != nil {
			return nil, err
		}

		if gap.Kind == GapWindow {
			// The walk covered the window and every page past it without holes
			pointer, err = r.confirmedUntil(ctx, n, res.Cursor.After, gap.Next.CreatedAt)
			if err != nil {
				return nil, err
			}

			// A run of known boosts follows, so the next window reaches to the newest indexed post
			stretch = res.Inserted == 0

			continue
		}

		if res.Inserted == 0 {
			return nil, ErrReactionNotFound
		}
	}

	return nil, ErrReactionNotFound
}

// confirmedUntil returns the creation time of the last post a forward walk merged,
// or floor when that post is older or unknown.
func (r *Resolver) confirmedUntil(ctx context.Context, n *types.BoostNotification, postID string, floor time.Time) (time.Time, error) {
	if postID == "" {
		return floor, nil
	}

	post, err := optional(r.db.Model().Post().Get(ctx, n.Domain, postID))
	if err != nil {
		return time.Time{}, err
	}

	if post == nil || !post.CreatedAt.After(floor) {
		return floor, nil
	}

	return post.CreatedAt, nil
}

func (r *Resolver) planGap(ctx context.Context, n *types.BoostNotification, pointer time.Time, stretch bool) (Gap, error) {
	posts := r.db.Model().Post()

	oldest, err := optional(posts.FindOldest(ctx, n.Domain, n.AccountID))
	if err != nil {
		return Gap{}, err
	}

	newest, err := optional(posts.FindNewest(ctx, n.Domain, n.AccountID))
	if err != nil {
		return Gap{}, err
	}

	before, err := optional(posts.FindLastAtOrBefore(ctx, n.Domain, n.AccountID, pointer))
	if err != nil {
		return Gap{}, err
	}

	after, err := optional(posts.FindFirstAfter(ctx, n.Domain, n.AccountID, pointer))
	if err != nil {
		return Gap{}, err
	}

	gap := PlanGap(pointer, oldest, newest, before, after)
	if stretch {
		gap = gap.Stretch(newest)
	}

	return gap, nil
}

// sync walks the booster's posts as a sync task.
func (r *Resolver) sync(ctx context.Context, s *state, cursor feedsync.Cursor) (*feedsync.Result, error) {
	res, err := durable.Execute(ctx, s.runner, durable.SyncPolicy(r.tasks).Named("sync_posts"),
		func(ctx context.Context) (*feedsync.Result, error) {
			return r.syncer.SyncPosts(ctx, feedsync.PostSyncInput{
				Credential: s.cred,
				AccountID:  s.notification.AccountID,
				Cursor:     cursor,
			})
		})
	if err != nil {
		return nil, err
	}

	if res.RateLimited {
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, &fediverse.RateLimitError{RetryAfter: res.RetryAfter})
	}

	return res, nil
}

// store fetches the relationship and writes the reaction.
func (r *Resolver) store(ctx context.Context, s *state, candidate *types.PostIndex) (*types.UserReaction, error) {
	n := s.notification

	rel, err := durable.Execute(ctx, s.runner, durable.RelationshipPolicy(r.tasks),
		func(ctx context.Context) (fediverse.Relationship, error) {
			client, err := r.factory.NewClient(s.cred)
			if err != nil {
				return fediverse.Relationship{}, durable.NonRetryable(err)
			}

			rel, err := client.FetchRelationship(ctx, n.AccountID)
			if err != nil && (fediverse.IsPermanent(err) || errors.Is(err, fediverse.ErrRateLimited)) {
				return rel, durable.NonRetryable(err)
			}

			return rel, err
		})
	if err != nil {
		if errors.Is(err, fediverse.ErrRateLimited) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}

		return nil, err
	}

	if utils.ContextSleep(ctx, config.Millis(r.cfg.RelationshipPause)) == utils.SleepCancelled {
		return nil, ctx.Err()
	}

	reaction := &types.UserReaction{
		Domain:         n.Domain,
		NotificationID: n.NotificationID,
		UserID:         n.UserID,
		AccountID:      n.AccountID,
		PostID:         n.PostID,
		ReactionID:     candidate.PostID,
		CreatedAt:      n.CreatedAt,
		ReactedAt:      candidate.CreatedAt,
		FromMutual:     rel.Mutual(),
	}

	resolved, err := r.db.Model().Reaction().Resolve(ctx, reaction)
	if err != nil {
		return nil, err
	}

	if !resolved {
		// Another run got there first
		return r.db.Model().Reaction().Get(ctx, n.Domain, n.NotificationID)
	}

	s.logger.Info("Resolved reaction",
		zap.String("reactionID", reaction.ReactionID),
		zap.Duration("delay", reaction.Delay()),
		zap.Bool("mutual", reaction.FromMutual))

	if r.onResolved != nil {
		r.onResolved(ctx, reaction)
	}

	return reaction, nil
}

func optional(post *types.PostIndex, err error) (*types.PostIndex, error) {
	if errors.Is(err, types.ErrPostNotFound) {
		return nil, nil
	}

	return post, err
}

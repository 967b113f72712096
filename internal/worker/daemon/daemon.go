// Package daemon runs the per-domain orchestrator that discovers, backfills and
// resolves boost notifications.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/durable"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/progress"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/robalyx/decelerator/internal/worker/core"
	"github.com/robalyx/decelerator/internal/worker/reaction"
	feedsync "github.com/robalyx/decelerator/internal/worker/sync"
	"github.com/robalyx/decelerator/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Input is the argument an orchestrator instance starts with.
type Input struct {
	Domain   string               `json:"domain"`
	Software types.ServerSoftware `json:"software"`
	Queue    []QueueItem          `json:"queue"`
}

// Buffer holds resolved notification ids until the account flushes them.
type Buffer interface {
	Flush(ctx context.Context, domain, userID string) ([]string, error)
}

// Options holds the collaborators of a Daemon.
type Options struct {
	DB       database.Client
	Syncer   *feedsync.Syncer
	Resolver *reaction.Resolver
	Buffer   Buffer
	Config   config.WorkerConfig
	// Reporter and Bar are optional.
	Reporter *core.StatusReporter
	Bar      *progress.Bar
}

// Daemon is the orchestrator of one domain.
type Daemon struct {
	domain   string
	db       database.Client
	syncer   *feedsync.Syncer
	resolver *reaction.Resolver
	buffer   Buffer
	cfg      config.WorkerConfig
	reporter *core.StatusReporter
	bar      *progress.Bar
	cooldown *backoff.ExponentialBackOff
	resolved atomic.Int64
	logger   *zap.Logger
}

// New creates the Daemon for domain.
func New(domain string, opts Options, logger *zap.Logger) *Daemon {
	daemon := opts.Config.Daemon

	cooldown := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(config.Millis(daemon.RateLimitBackoff)),
		backoff.WithMaxInterval(config.Millis(daemon.RateLimitMaxBackoff)),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)

	return &Daemon{
		domain:   domain,
		db:       opts.DB,
		syncer:   opts.Syncer,
		resolver: opts.Resolver,
		buffer:   opts.Buffer,
		cfg:      opts.Config,
		reporter: opts.Reporter,
		bar:      opts.Bar,
		cooldown: cooldown,
		logger:   logger.Named("daemon").With(zap.String("domain", domain)),
	}
}

// Domain returns the domain the daemon serves.
func (d *Daemon) Domain() string {
	return d.domain
}

// Resolved returns the number of reactions resolved since the daemon was created.
func (d *Daemon) Resolved() int64 {
	return d.resolved.Load()
}

// Flush returns and clears the notification ids resolved for a local account since its last flush.
func (d *Daemon) Flush(ctx context.Context, userID string) ([]string, error) {
	if d.buffer == nil {
		return nil, nil
	}

	return d.buffer.Flush(ctx, d.domain, userID)
}

// cycleResult summarizes one discover, backfill and drain pass.
type cycleResult struct {
	rateLimited bool
	retryAfter  time.Duration
}

func (c *cycleResult) limit(retryAfter time.Duration) {
	c.rateLimited = true
	c.retryAfter = max(c.retryAfter, retryAfter)
}

// Run executes cycles until ctx is cancelled or the history asks for a restart.
// A restart is returned as a durable.ContinueAsNewError carrying the remaining queue.
func (d *Daemon) Run(ctx context.Context, in Input) error {
	history := durable.NewHistory(d.cfg.Daemon.HistoryThreshold)
	runner := durable.NewRunner(history, d.logger)
	queue := NewQueue(in.Queue...)

	d.logger.Info("Daemon instance started", zap.Int("queued", queue.Len()))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// An idle instance still records tasks every cycle
		if err := d.checkpoint(runner, in, queue); err != nil {
			return err
		}

		if d.bar != nil {
			d.bar.Reset()
		}

		res, err := d.cycle(ctx, runner, in, queue)
		if err != nil {
			return err
		}

		wait := config.Millis(d.cfg.Daemon.IdleInterval)
		if res.rateLimited {
			wait = max(d.cooldown.NextBackOff(), res.retryAfter)
			d.logger.Warn("Rate limited, cooling down", zap.Duration("wait", wait))
			d.setStep("Cooling down", 100)
		} else {
			d.cooldown.Reset()
			d.setStep("Idle", 100)
		}

		if utils.ContextSleep(ctx, wait) == utils.SleepCancelled {
			return ctx.Err()
		}
	}
}

// checkpoint returns a continue-as-new error carrying the queue once the history is long enough.
func (d *Daemon) checkpoint(runner *durable.Runner, in Input, queue *Queue) error {
	if !runner.History().ContinueAsNewSuggested() {
		return nil
	}

	d.logger.Info("History threshold reached, restarting instance",
		zap.Int("history", runner.History().Len()),
		zap.Int("queued", queue.Len()))

	return durable.ContinueAsNew(Input{Domain: in.Domain, Software: in.Software, Queue: queue.Items()})
}

func (d *Daemon) cycle(ctx context.Context, runner *durable.Runner, in Input, queue *Queue) (*cycleResult, error) {
	res := &cycleResult{}

	d.setStep("Discovering", 0)

	discovered, err := d.discover(ctx, runner, in, res)
	if err != nil {
		return nil, err
	}

	d.setStep("Backfilling", 25)

	backfilled, err := d.backfill(ctx)
	if err != nil {
		return nil, err
	}

	added := 0
	for _, item := range append(discovered, backfilled...) {
		if queue.Push(item) {
			added++
		}
	}

	d.logger.Debug("Queue filled",
		zap.Int("discovered", len(discovered)),
		zap.Int("backfilled", len(backfilled)),
		zap.Int("added", added),
		zap.Int("queued", queue.Len()))

	d.setStep("Draining", 50)

	if err := d.drain(ctx, runner, in, queue, res); err != nil {
		return nil, err
	}

	return res, nil
}

// discover syncs every authorized account and returns its newly found unresolved notifications.
func (d *Daemon) discover(ctx context.Context, runner *durable.Runner, in Input, res *cycleResult) ([]QueueItem, error) {
	accounts, err := d.db.Model().Account().ListAuthorized(ctx, d.domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	server := &types.Server{Domain: d.domain, Software: in.Software}

	var mu sync.Mutex

	p := pool.NewWithResults[[]QueueItem]().
		WithContext(ctx).
		WithMaxGoroutines(max(d.cfg.Daemon.DiscoveryConcurrency, 1))

	for _, account := range accounts {
		p.Go(func(ctx context.Context) ([]QueueItem, error) {
			found, err := d.discoverAccount(ctx, runner, server, account)
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Warn("Discovery failed",
						zap.String("accountID", account.AccountID),
						zap.Error(err))
				}

				return nil, nil
			}

			if found.rateLimited {
				mu.Lock()
				res.limit(found.retryAfter)
				mu.Unlock()
			}

			return found.items, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []QueueItem
	for _, r := range results {
		items = append(items, r...)
	}

	return items, nil
}

// discovery is what one account contributed to a cycle.
type discovery struct {
	items       []QueueItem
	rateLimited bool
	retryAfter  time.Duration
}

// discoverAccount syncs the notifications of one account and lists its new unresolved ones.
func (d *Daemon) discoverAccount(
	ctx context.Context, runner *durable.Runner, server *types.Server, account *types.Account,
) (*discovery, error) {
	logger := d.logger.With(zap.String("accountID", account.AccountID))

	cred, err := d.db.Service().Account().Unseal(server, account)
	if err != nil {
		return nil, err
	}

	policy := durable.SyncPolicy(d.cfg.Tasks).Named("discover").WithNonRetryable(fediverse.IsPermanent)

	res, err := durable.Execute(ctx, runner, policy, func(ctx context.Context) (*feedsync.AccountResult, error) {
		return d.syncer.SyncAccountNotifications(ctx, fediverse.Credential{
			Domain:   cred.Domain,
			Software: cred.Software,
			Token:    cred.Token,
		}, account.AccountID)
	})
	if errors.Is(err, fediverse.ErrUnauthorized) {
		logger.Error("Account credential rejected, skipping account", zap.Error(err))

		if err := d.db.Model().Account().MarkUnauthorized(ctx, d.domain, account.AccountID); err != nil {
			return nil, fmt.Errorf("failed to mark account unauthorized: %w", err)
		}

		return &discovery{}, nil
	}

	if err != nil {
		return nil, err
	}

	pending, err := d.db.Model().Notification().ListUnresolved(ctx, d.domain, account.AccountID, res.Known)
	if err != nil {
		return nil, err
	}

	out := &discovery{
		items:       make([]QueueItem, 0, len(pending)),
		rateLimited: res.RateLimited,
		retryAfter:  res.RetryAfter,
	}

	for _, n := range pending {
		out.items = append(out.items, QueueItem{UserID: n.UserID, NotificationID: n.NotificationID})
	}

	logger.Debug("Account discovered",
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("pending", len(out.items)),
		zap.Bool("rateLimited", res.RateLimited))

	return out, nil
}

// backfill returns unresolved notifications within the backfill horizon.
func (d *Daemon) backfill(ctx context.Context) ([]QueueItem, error) {
	since := time.Now().Add(-d.cfg.Daemon.BackfillHorizon())

	pending, err := d.db.Model().Notification().ListUnresolvedSince(ctx, d.domain, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved notifications: %w", err)
	}

	items := make([]QueueItem, 0, len(pending))
	for _, n := range pending {
		items = append(items, QueueItem{UserID: n.UserID, NotificationID: n.NotificationID})
	}

	return items, nil
}

// outcome is the result of resolving one queue item.
type outcome struct {
	item QueueItem
	err  error
}

// drain resolves queued notifications until the queue is empty or a rate limit is hit.
func (d *Daemon) drain(ctx context.Context, runner *durable.Runner, in Input, queue *Queue, res *cycleResult) error {
	batchSize := max(d.cfg.Daemon.DrainConcurrency, 1)
	total := queue.Len()
	done := 0

	if d.bar != nil {
		d.bar.SetTotal(int64(total))
	}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Checkpoint between batches
		if err := d.checkpoint(runner, in, queue); err != nil {
			return err
		}

		// Take the newest notifications first
		batch := make([]QueueItem, 0, batchSize)
		for len(batch) < batchSize {
			item, ok := queue.Pop()
			if !ok {
				break
			}

			batch = append(batch, item)
		}

		// Resolve the batch concurrently, each item in its own resolve task
		p := pool.NewWithResults[outcome]().WithMaxGoroutines(batchSize)
		for _, item := range batch {
			p.Go(func() outcome {
				return outcome{item: item, err: d.resolve(ctx, runner, item)}
			})
		}

		for _, o := range p.Wait() {
			if errors.Is(o.err, reaction.ErrRateLimited) {
				// Keep the item so a restart does not lose it
				queue.Push(o.item)
				res.limit(fediverse.RetryAfter(o.err))

				continue
			}

			d.handle(o)
		}

		done += len(batch)
		d.updateProgress(done, total, queue.Len())

		// Stop at the first rate limit and let Run cool down
		if res.rateLimited {
			d.logger.Info("Drain stopped by rate limit", zap.Int("queued", queue.Len()))
			return nil
		}
	}

	return nil
}

func (d *Daemon) resolve(ctx context.Context, runner *durable.Runner, item QueueItem) error {
	// Retries happen inside the nested sync and relationship tasks
	policy := durable.Policy{Name: "resolve", MaxAttempts: 1}

	return runner.Run(ctx, policy, func(ctx context.Context) error {
		_, err := d.resolver.Resolve(ctx, runner, reaction.ResolveInput{
			Domain:         d.domain,
			NotificationID: item.NotificationID,
		})

		return err
	})
}

func (d *Daemon) handle(o outcome) {
	logger := d.logger.With(
		zap.String("userID", o.item.UserID),
		zap.String("notificationID", o.item.NotificationID))

	switch {
	case o.err == nil:
		d.resolved.Add(1)
	case reaction.IsSoft(o.err):
		logger.Debug("Notification not resolvable yet", zap.Error(o.err))
	case reaction.IsTerminal(o.err):
		logger.Warn("Dropping notification", zap.Error(o.err))
	case errors.Is(o.err, context.Canceled):
	default:
		logger.Error("Failed to resolve notification", zap.Error(o.err))
	}
}

func (d *Daemon) setStep(step string, percent int) {
	if d.bar != nil {
		d.bar.SetStepMessage(step)
	}

	if d.reporter != nil {
		d.reporter.UpdateStatus(step, percent)
	}
}

func (d *Daemon) updateProgress(done, total, queued int) {
	if d.bar != nil {
		d.bar.SetCurrent(int64(done))
	}

	if d.reporter != nil {
		percent := 50
		if total > 0 {
			percent += done * 50 / total
		}

		d.reporter.UpdateStatus("Draining", min(percent, 100))
		d.reporter.UpdateQueue(queued, d.resolved.Load())
	}
}

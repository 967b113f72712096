package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/dbtest"
	"github.com/robalyx/decelerator/internal/database/service"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/durable"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/fediverse/fediversetest"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/robalyx/decelerator/internal/worker/reaction"
	feedsync "github.com/robalyx/decelerator/internal/worker/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	domain = "example.social"
	token  = "token-alice"
	alice  = "1"
)

var errStoreDown = errors.New("store down")

type memStore struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string][]byte)}
}

func (s *memStore) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.saved[key] = payload

	return nil
}

func (s *memStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.saved[key]
	if !ok {
		return nil, durable.ErrNoCheckpoint
	}

	return payload, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.saved, key)

	return nil
}

type env struct {
	db     database.Client
	server *fediversetest.Server
	cfg    *config.Config
	t0     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		db:     dbtest.New(t),
		server: fediversetest.NewServer(types.SoftwareMastodon),
		cfg:    config.Default(),
		t0:     time.Now().Add(-time.Hour).Truncate(time.Second).UTC(),
	}

	e.cfg.Worker.Sync.PagePause = 0
	e.cfg.Worker.Reaction.RelationshipPause = 0
	e.cfg.Worker.Daemon.IdleInterval = 10
	e.cfg.Worker.Tasks.Sync.InitialInterval = 1
	e.cfg.Worker.Tasks.Sync.MaxInterval = 1

	_, err := e.db.Service().Account().Register(t.Context(), service.RegisterInput{
		Domain: domain, Software: types.SoftwareMastodon, AccountID: alice, Username: "alice", Token: token,
	})
	require.NoError(t, err)

	e.server.AddPosts(fediverse.Post{ID: "50", AccountID: alice, Visibility: "public", CreatedAt: e.t0.Add(-24 * time.Hour)})

	return e
}

// boost scripts a boost of alice's post followed by a reply from the booster.
func (e *env) boost(notificationID, booster, boostID, reactionID string, offset time.Duration) {
	at := e.t0.Add(offset)

	e.server.AddNotifications(token, fediverse.Notification{ID: notificationID, CreatedAt: at, AccountID: booster, PostID: "50"})
	e.server.AddPosts(
		fediverse.Post{ID: boostID, AccountID: booster, BoostOfID: "50", Visibility: "public", CreatedAt: at},
		fediverse.Post{ID: reactionID, AccountID: booster, Visibility: "public", CreatedAt: at.Add(30 * time.Second)},
	)
}

func (e *env) daemon(t *testing.T) *Daemon {
	t.Helper()

	logger := zaptest.NewLogger(t)
	syncer := feedsync.New(e.db, e.server.Factory(), e.cfg.Worker.Sync, 5, logger)
	resolver := reaction.NewResolver(e.db, syncer, e.server.Factory(), e.cfg.Worker.Reaction, e.cfg.Worker.Tasks, logger)

	return New(domain, Options{
		DB:       e.db,
		Syncer:   syncer,
		Resolver: resolver,
		Config:   e.cfg.Worker,
	}, logger)
}

func (e *env) reactions(t *testing.T) int {
	t.Helper()

	count, err := e.db.Model().Reaction().Count(context.Background(), domain)
	require.NoError(t, err)

	return count
}

func (e *env) input() Input {
	return Input{Domain: domain, Software: types.SoftwareMastodon}
}

func TestCycleResolvesDiscoveredNotifications(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)
	e.boost("1002", "3", "300", "301", time.Minute)

	d := e.daemon(t)
	runner := durable.NewRunner(durable.NewHistory(0), zaptest.NewLogger(t))
	queue := NewQueue()

	res, err := d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)

	assert.False(t, res.rateLimited)
	assert.Zero(t, queue.Len())
	assert.Equal(t, 2, e.reactions(t))
	assert.Equal(t, int64(2), d.Resolved())

	got, err := e.db.Model().Reaction().Get(t.Context(), domain, "1002")
	require.NoError(t, err)
	assert.Equal(t, "301", got.ReactionID)

	// A second cycle finds nothing new
	res, err = d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)
	assert.False(t, res.rateLimited)
	assert.Equal(t, 2, e.reactions(t))
}

func TestCycleKeepsSoftFailuresForBackfill(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.server.AddNotifications(token, fediverse.Notification{ID: "1001", CreatedAt: e.t0, AccountID: "2", PostID: "50"})
	e.server.AddPosts(fediverse.Post{ID: "200", AccountID: "2", BoostOfID: "50", Visibility: "public", CreatedAt: e.t0})

	d := e.daemon(t)
	runner := durable.NewRunner(nil, zaptest.NewLogger(t))
	queue := NewQueue()

	_, err := d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)
	assert.Zero(t, e.reactions(t))
	assert.Zero(t, queue.Len())

	// The booster replies later and backfill picks the notification up again
	e.server.AddPosts(fediverse.Post{ID: "201", AccountID: "2", Visibility: "public", CreatedAt: e.t0.Add(time.Minute)})

	_, err = d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)
	assert.Equal(t, 1, e.reactions(t))
}

func TestCycleSkipsUnauthorizedAccount(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)
	e.server.Revoke(token)

	d := e.daemon(t)
	runner := durable.NewRunner(nil, zaptest.NewLogger(t))

	_, err := d.cycle(t.Context(), runner, e.input(), NewQueue())
	require.NoError(t, err)

	account, err := e.db.Model().Account().Get(t.Context(), domain, alice)
	require.NoError(t, err)
	assert.False(t, account.Authorized())

	calls := e.server.Calls()

	_, err = d.cycle(t.Context(), runner, e.input(), NewQueue())
	require.NoError(t, err)
	assert.Equal(t, calls, e.server.Calls())
}

func TestCycleStopsDrainOnRateLimit(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)

	// Discovery needs a single page, the first post sync is refused
	e.server.RateLimitAfter(1)

	d := e.daemon(t)
	runner := durable.NewRunner(nil, zaptest.NewLogger(t))
	queue := NewQueue()

	res, err := d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)

	assert.True(t, res.rateLimited)
	assert.Equal(t, []QueueItem{{UserID: alice, NotificationID: "1001"}}, queue.Items())
	assert.Zero(t, e.reactions(t))

	e.server.RateLimitAfter(-1)

	res, err = d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)
	assert.False(t, res.rateLimited)
	assert.Equal(t, 1, e.reactions(t))
}

func TestCycleKeepsServerRetryHint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)
	e.server.RateLimitAfter(1)
	e.server.SetRetryAfter(7 * time.Minute)

	d := e.daemon(t)
	runner := durable.NewRunner(nil, zaptest.NewLogger(t))
	queue := NewQueue()

	res, err := d.cycle(t.Context(), runner, e.input(), queue)
	require.NoError(t, err)

	// Refused while draining, so the hint comes through the resolver
	assert.True(t, res.rateLimited)
	assert.Equal(t, 7*time.Minute, res.retryAfter)
	assert.Equal(t, 1, queue.Len())
}

func TestRunContinuesAsNewWhenIdle(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.cfg.Worker.Daemon.HistoryThreshold = 3

	d := e.daemon(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	// Nothing to resolve, only discovery tasks fill the history
	err := d.Run(ctx, e.input())

	next, ok := durable.AsContinueAsNew[Input](err)
	require.True(t, ok, "expected continue as new, got %v", err)
	assert.Empty(t, next.Queue)
	assert.GreaterOrEqual(t, e.server.Calls().Notifications, 2)
}

func TestCooldownGrowsToCap(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	d := e.daemon(t)

	want := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute, 40 * time.Minute, time.Hour, time.Hour}
	for _, w := range want {
		assert.Equal(t, w, d.cooldown.NextBackOff())
	}

	d.cooldown.Reset()
	assert.Equal(t, 5*time.Minute, d.cooldown.NextBackOff())
}

func TestRunContinuesAsNewWithRemainingQueue(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)
	e.boost("1002", "3", "300", "301", time.Minute)
	e.cfg.Worker.Daemon.HistoryThreshold = 4

	d := e.daemon(t)

	err := d.Run(t.Context(), e.input())

	next, ok := durable.AsContinueAsNew[Input](err)
	require.True(t, ok, "expected continue as new, got %v", err)

	assert.Equal(t, domain, next.Domain)
	assert.Equal(t, types.SoftwareMastodon, next.Software)
	assert.Equal(t, []QueueItem{{UserID: alice, NotificationID: "1001"}}, next.Queue)
	assert.Equal(t, 1, e.reactions(t))
}

func TestSupervisorPersistsCheckpointAndResumes(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)
	e.boost("1002", "3", "300", "301", time.Minute)
	e.cfg.Worker.Daemon.HistoryThreshold = 4

	store := newMemStore()
	supervisor := NewSupervisor(e.daemon(t), store, zaptest.NewLogger(t)).WithRestartDelay(time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- supervisor.Run(ctx, e.input())
	}()

	require.Eventually(t, func() bool {
		return e.reactions(t) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	saved, err := durable.LoadCheckpoint[Input](t.Context(), store, CheckpointKey(domain))
	require.NoError(t, err)
	assert.Equal(t, []QueueItem{{UserID: alice, NotificationID: "1001"}}, saved.Queue)
}

func TestSupervisorLoadsCheckpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.server.AddPosts(
		fediverse.Post{ID: "200", AccountID: "2", BoostOfID: "50", Visibility: "public", CreatedAt: e.t0},
		fediverse.Post{ID: "201", AccountID: "2", Visibility: "public", CreatedAt: e.t0.Add(time.Minute)},
	)

	// Indexed but neither discoverable nor within the backfill horizon
	_, err := e.db.Model().Notification().InsertNotifications(t.Context(), []*types.BoostNotification{{
		Domain: domain, NotificationID: "1001", UserID: alice, AccountID: "2", PostID: "50", CreatedAt: e.t0,
	}})
	require.NoError(t, err)

	e.cfg.Worker.Daemon.BackfillHorizonHours = 0

	store := newMemStore()
	require.NoError(t, durable.SaveCheckpoint(t.Context(), store, CheckpointKey(domain), Input{
		Domain: domain,
		Queue:  []QueueItem{{UserID: alice, NotificationID: "1001"}},
	}))

	supervisor := NewSupervisor(e.daemon(t), store, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- supervisor.Run(ctx, e.input())
	}()

	require.Eventually(t, func() bool {
		return e.reactions(t) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisorFailsWhenCheckpointCannotBeSaved(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.boost("1001", "2", "200", "201", 0)
	e.boost("1002", "3", "300", "301", time.Minute)
	e.cfg.Worker.Daemon.HistoryThreshold = 4

	store := newMemStore()
	store.err = errStoreDown

	supervisor := NewSupervisor(e.daemon(t), store, zaptest.NewLogger(t))

	err := supervisor.Run(t.Context(), e.input())
	require.ErrorIs(t, err, ErrCheckpointFailed)
	require.ErrorIs(t, err, errStoreDown)
}

func TestSupervisorRestartsAfterPanic(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	d := e.daemon(t)
	d.db = nil

	supervisor := NewSupervisor(d, newMemStore(), zaptest.NewLogger(t)).WithRestartDelay(time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, supervisor.Run(ctx, e.input()))
}

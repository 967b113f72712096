package models_test

import (
	"sync"
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/database/dbtest"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domain = "example.social"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func post(id, account, boostOf string, at time.Time) *types.PostIndex {
	return &types.PostIndex{
		Domain:     domain,
		PostID:     id,
		AccountID:  account,
		BoostOfID:  boostOf,
		Visibility: "public",
		CreatedAt:  at,
		Data:       map[string]any{"id": id},
	}
}

func notification(id, user, booster, postID string, at time.Time) *types.BoostNotification {
	return &types.BoostNotification{
		Domain:         domain,
		NotificationID: id,
		UserID:         user,
		AccountID:      booster,
		PostID:         postID,
		CreatedAt:      at,
	}
}

func TestPostModel(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	posts := db.Model().Post()
	ctx := t.Context()

	rows := []*types.PostIndex{
		post("100", "b", "", t0.Add(-time.Hour)),
		post("101", "b", "50", t0),
		post("102", "b", "51", t0.Add(10*time.Second)),
		post("103", "b", "", t0.Add(45*time.Second)),
	}

	inserted, err := posts.InsertPosts(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)

	// Inserting the same rows again is a no-op
	inserted, err = posts.InsertPosts(ctx, []*types.PostIndex{post("101", "b", "50", t0), post("104", "b", "", t0.Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	count, err := posts.Count(ctx, domain, "b")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	anchor, err := posts.FindAnchor(ctx, domain, "b", "50")
	require.NoError(t, err)
	assert.Equal(t, "101", anchor.PostID)

	_, err = posts.FindAnchor(ctx, domain, "b", "999")
	require.ErrorIs(t, err, types.ErrPostNotFound)

	reaction, err := posts.FindFirstOriginalAfter(ctx, domain, "b", anchor.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, "103", reaction.PostID)

	next, err := posts.FindFirstAfter(ctx, domain, "b", anchor.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, "102", next.PostID)

	before, err := posts.FindLastAtOrBefore(ctx, domain, "b", t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "101", before.PostID)

	oldest, err := posts.FindOldest(ctx, domain, "b")
	require.NoError(t, err)
	assert.Equal(t, "100", oldest.PostID)

	newest, err := posts.FindNewest(ctx, domain, "b")
	require.NoError(t, err)
	assert.Equal(t, "104", newest.PostID)
	assert.True(t, newest.CreatedAt.Equal(t0.Add(time.Hour)))

	// Upsert refreshes the payload only
	updated := post("100", "b", "", t0.Add(-time.Hour))
	updated.Data = map[string]any{"id": "100", "edited": true}
	require.NoError(t, posts.UpsertPosts(ctx, []*types.PostIndex{updated}))

	got, err := posts.Get(ctx, domain, "100")
	require.NoError(t, err)
	assert.Equal(t, true, got.Data["edited"])
}

func TestNotificationModel(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	notifications := db.Model().Notification()
	ctx := t.Context()

	inserted, err := notifications.InsertNotifications(ctx, []*types.BoostNotification{
		notification("9", "u", "b", "50", t0.Add(-2*time.Hour)),
		notification("10", "u", "b", "51", t0.Add(-time.Hour)),
		notification("11", "u", "c", "52", t0),
		notification("12", "other", "c", "53", t0),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)

	latest, err := notifications.FindLatest(ctx, domain, "u")
	require.NoError(t, err)
	assert.Equal(t, "11", latest.NotificationID)

	oldest, err := notifications.FindOldest(ctx, domain, "u")
	require.NoError(t, err)
	assert.Equal(t, "9", oldest.NotificationID)

	tests := []struct {
		name   string
		filter types.NotificationFilter
		want   []string
	}{
		{name: "no filter", filter: types.NotificationFilter{}, want: []string{"11", "10", "9"}},
		{name: "after", filter: types.NotificationFilter{After: "9"}, want: []string{"11", "10"}},
		{name: "before", filter: types.NotificationFilter{Before: "10"}, want: []string{"9"}},
		{name: "either side", filter: types.NotificationFilter{After: "10", Before: "10"}, want: []string{"11", "9"}},
	}

	for _, tt := range tests {
		rows, err := notifications.ListUnresolved(ctx, domain, "u", tt.filter)
		require.NoError(t, err, tt.name)

		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.NotificationID)
		}

		assert.Equal(t, tt.want, ids, tt.name)
	}

	since, err := notifications.ListUnresolvedSince(ctx, domain, t0.Add(-90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, since, 3)
}

func TestReactionResolveIsAtMostOnce(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	ctx := t.Context()

	_, err := db.Model().Notification().InsertNotifications(ctx, []*types.BoostNotification{
		notification("1", "u", "b", "50", t0),
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := db.Model().Reaction().Resolve(ctx, &types.UserReaction{
				Domain:         domain,
				NotificationID: "1",
				UserID:         "u",
				AccountID:      "b",
				PostID:         "50",
				ReactionID:     "103",
				CreatedAt:      t0,
				ReactedAt:      t0.Add(45 * time.Second),
			})
			assert.NoError(t, err)

			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, created)

	n, err := db.Model().Notification().Get(ctx, domain, "1")
	require.NoError(t, err)
	assert.Equal(t, "103", n.ReactionID)

	count, err := db.Model().Reaction().Count(ctx, domain)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Re-syncing the notification never clears the reaction
	_, err = db.Model().Notification().InsertNotifications(ctx, []*types.BoostNotification{
		notification("1", "u", "b", "50", t0),
	})
	require.NoError(t, err)

	n, err = db.Model().Notification().Get(ctx, domain, "1")
	require.NoError(t, err)
	assert.Equal(t, "103", n.ReactionID)
}

func TestReactionList(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	ctx := t.Context()

	_, err := db.Model().Notification().InsertNotifications(ctx, []*types.BoostNotification{
		notification("1", "u", "b", "50", t0),
		notification("2", "u", "c", "51", t0.Add(time.Minute)),
	})
	require.NoError(t, err)

	for _, r := range []*types.UserReaction{
		{Domain: domain, NotificationID: "1", UserID: "u", AccountID: "b", PostID: "50", ReactionID: "60",
			CreatedAt: t0, ReactedAt: t0.Add(45 * time.Second), FromMutual: true},
		{Domain: domain, NotificationID: "2", UserID: "u", AccountID: "c", PostID: "51", ReactionID: "61",
			CreatedAt: t0.Add(time.Minute), ReactedAt: t0.Add(3 * time.Hour)},
	} {
		ok, err := db.Model().Reaction().Resolve(ctx, r)
		require.NoError(t, err)
		require.True(t, ok)
	}

	all, err := db.Model().Reaction().List(ctx, domain, "u", types.ReactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	windowed, err := db.Model().Reaction().List(ctx, domain, "u", types.ReactionFilter{Window: 2 * time.Minute})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "60", windowed[0].ReactionID)

	mutual, err := db.Model().Reaction().List(ctx, domain, "u", types.ReactionFilter{MutualOnly: true})
	require.NoError(t, err)
	require.Len(t, mutual, 1)
	assert.True(t, mutual[0].FromMutual)

	since, err := db.Model().Reaction().ListSince(ctx, t0.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "2", since[0].NotificationID)
}

func TestAccountModel(t *testing.T) {
	t.Parallel()

	db := dbtest.New(t)
	accounts := db.Model().Account()
	ctx := t.Context()

	require.NoError(t, accounts.Upsert(ctx, &types.Account{
		Domain: domain, AccountID: "u", Username: "alice", AccessToken: "t1",
	}))
	require.NoError(t, accounts.MarkUnauthorized(ctx, domain, "u"))

	list, err := accounts.ListAuthorized(ctx, domain)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Replacing the credential re-authorizes the account
	require.NoError(t, accounts.Upsert(ctx, &types.Account{
		Domain: domain, AccountID: "u", Username: "alice", AccessToken: "t2",
	}))

	list, err = accounts.ListAuthorized(ctx, domain)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t2", list[0].AccessToken)
	assert.True(t, list[0].Authorized())
}

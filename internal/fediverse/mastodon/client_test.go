package mastodon_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/fediverse/mastodon"
	"github.com/robalyx/decelerator/internal/fediverse/provider"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T, handler http.HandlerFunc) *mastodon.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr := fediverse.NewTransport(srv.URL,
		provider.NewHTTPClient(config.Default().Common.Remote, "token", nil, zaptest.NewLogger(t)))

	return mastodon.New(tr)
}

func TestListNotifications(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notifications", r.URL.Path)
		assert.Equal(t, []string{"reblog"}, r.URL.Query()["types[]"])
		assert.Equal(t, "100", r.URL.Query().Get("min_id"))
		assert.Equal(t, "40", r.URL.Query().Get("limit"))

		_, _ = w.Write([]byte(`[
			{"id":"102","type":"reblog","created_at":"2025-06-10T12:00:00.000Z",
			 "account":{"id":"7","username":"booster"},
			 "status":{"id":"55","created_at":"2025-06-09T12:00:00.000Z","visibility":"public","account":{"id":"1"}}},
			{"id":"101","type":"favourite","created_at":"2025-06-10T11:00:00.000Z",
			 "account":{"id":"8"},"status":{"id":"55","account":{"id":"1"}}}
		]`))
	})

	got, err := client.ListNotifications(t.Context(), fediverse.Page{MinID: "100", Limit: 40})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "102", got[0].ID)
	assert.Equal(t, "7", got[0].AccountID)
	assert.Equal(t, "55", got[0].PostID)
	assert.Equal(t, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), got[0].CreatedAt.UTC())
	assert.Equal(t, "reblog", got[0].Raw["type"])
}

func TestListPosts(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts/7/statuses", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("exclude_replies"))
		assert.Equal(t, "300", r.URL.Query().Get("max_id"))

		_, _ = w.Write([]byte(`[
			{"id":"210","created_at":"2025-06-10T12:01:00.000Z","visibility":"public","account":{"id":"7"}},
			{"id":"200","created_at":"2025-06-10T12:00:00.000Z","visibility":"public","account":{"id":"7"},
			 "reblog":{"id":"55","created_at":"2025-06-09T12:00:00.000Z","visibility":"unlisted","account":{"id":"1"}}}
		]`))
	})

	got, err := client.ListPosts(t.Context(), "7", fediverse.Page{MaxID: "300"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "210", got[0].ID)
	assert.Empty(t, got[0].BoostOfID)

	assert.Equal(t, "200", got[1].ID)
	assert.Equal(t, "55", got[1].BoostOfID)
	assert.Equal(t, "7", got[1].AccountID)

	assert.Equal(t, "55", got[2].ID)
	assert.Equal(t, "1", got[2].AccountID)
	assert.Equal(t, "unlisted", got[2].Visibility)
	assert.Equal(t, "55", got[2].Raw["id"])
	assert.True(t, got[2].Embedded)
	assert.False(t, got[1].Embedded)
}

func TestFetchRelationship(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"7"}, r.URL.Query()["id[]"])
		_, _ = w.Write([]byte(`[{"id":"7","following":true,"followed_by":true}]`))
	})

	rel, err := client.FetchRelationship(t.Context(), "7")
	require.NoError(t, err)
	assert.True(t, rel.Mutual())
}

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.ListNotifications(t.Context(), fediverse.Page{})
		require.ErrorIs(t, err, fediverse.ErrRateLimited)
		assert.Equal(t, time.Minute, fediverse.RetryAfter(err))
	})

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.VerifyCredentials(t.Context())
		require.ErrorIs(t, err, fediverse.ErrUnauthorized)
	})
}

func TestSoftware(t *testing.T) {
	t.Parallel()
	assert.Equal(t, types.SoftwareMastodon, mastodon.New(nil).Software())
}

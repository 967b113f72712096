package fediversetest_test

import (
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/fediverse/fediversetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(posts []fediverse.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}

	return out
}

func TestPaging(t *testing.T) {
	t.Parallel()

	server := fediversetest.NewServer(types.SoftwareMastodon)
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"11", "12", "13", "14", "15"} {
		server.AddPosts(fediverse.Post{ID: id, AccountID: "7", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	client := server.Client("token")

	got, err := client.ListPosts(t.Context(), "7", fediverse.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"15", "14"}, ids(got))

	got, err = client.ListPosts(t.Context(), "7", fediverse.Page{MinID: "11", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"13", "12"}, ids(got))

	got, err = client.ListPosts(t.Context(), "7", fediverse.Page{MaxID: "14", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"13", "12"}, ids(got))

	got, err = client.ListPosts(t.Context(), "7", fediverse.Page{MinID: "12", MaxID: "15", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"14", "13"}, ids(got))
}

func TestScriptedFailures(t *testing.T) {
	t.Parallel()

	server := fediversetest.NewServer(types.SoftwareMisskey)
	client := server.Client("token")

	server.RateLimitAfter(1)

	_, err := client.ListNotifications(t.Context(), fediverse.Page{})
	require.NoError(t, err)

	_, err = client.ListNotifications(t.Context(), fediverse.Page{})
	require.ErrorIs(t, err, fediverse.ErrRateLimited)

	server.RateLimitAfter(-1)
	server.Revoke("token")

	_, err = client.FetchRelationship(t.Context(), "7")
	require.ErrorIs(t, err, fediverse.ErrUnauthorized)
	assert.Equal(t, 1, server.Calls().Notifications)
}

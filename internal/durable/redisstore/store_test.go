package redisstore_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/decelerator/internal/durable"
	"github.com/robalyx/decelerator/internal/durable/redisstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type input struct {
	Domain string   `json:"domain"`
	Queue  []string `json:"queue"`
}

func newStore(t *testing.T) *redisstore.Store {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return redisstore.New(client)
}

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := t.Context()

	_, err := durable.LoadCheckpoint[input](ctx, store, "example.social")
	require.ErrorIs(t, err, durable.ErrNoCheckpoint)

	want := input{Domain: "example.social", Queue: []string{"3", "2"}}
	require.NoError(t, durable.SaveCheckpoint(ctx, store, "example.social", want))

	got, err := durable.LoadCheckpoint[input](ctx, store, "example.social")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Delete(ctx, "example.social"))

	_, err = durable.LoadCheckpoint[input](ctx, store, "example.social")
	require.ErrorIs(t, err, durable.ErrNoCheckpoint)
}

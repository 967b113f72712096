package daemon_test

import (
	"testing"

	"github.com/robalyx/decelerator/internal/worker/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Parallel()

	q := daemon.NewQueue(
		daemon.QueueItem{UserID: "1", NotificationID: "99"},
		daemon.QueueItem{UserID: "1", NotificationID: "100"},
		daemon.QueueItem{UserID: "2", NotificationID: "150"},
	)

	assert.False(t, q.Push(daemon.QueueItem{UserID: "1", NotificationID: "100"}))
	assert.True(t, q.Push(daemon.QueueItem{UserID: "2", NotificationID: "100"}))
	assert.Equal(t, 4, q.Len())

	want := []daemon.QueueItem{
		{UserID: "2", NotificationID: "150"},
		{UserID: "1", NotificationID: "100"},
		{UserID: "2", NotificationID: "100"},
		{UserID: "1", NotificationID: "99"},
	}
	assert.Equal(t, want, q.Items())
	assert.Equal(t, 4, q.Len())

	for _, w := range want {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, w, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok)

	// Popped items may be queued again
	assert.True(t, q.Push(want[0]))
}

package redis_test

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/robalyx/decelerator/internal/redis"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManagerSelectsDatabase(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{Host: mr.Host(), Port: port}, zaptest.NewLogger(t))
	defer manager.Close()

	client, err := manager.GetClient(redis.DeliveryDBIndex)
	require.NoError(t, err)

	again, err := manager.GetClient(redis.DeliveryDBIndex)
	require.NoError(t, err)
	assert.Same(t, client, again)

	require.NoError(t, client.Do(t.Context(), client.B().Set().Key("k").Value("v").Build()).Error())

	mr.Select(redis.DeliveryDBIndex)
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

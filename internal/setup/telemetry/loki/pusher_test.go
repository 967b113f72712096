package loki

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestPusherShipsBatches(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received []pushRequest
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gz, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}

		body, _ := io.ReadAll(gz)

		var req pushRequest
		if assert.NoError(t, sonic.Unmarshal(body, &req)) {
			mu.Lock()
			received = append(received, req)
			mu.Unlock()
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Loki{Enabled: true, URL: srv.URL, BatchMaxSize: 2, BatchMaxWaitMS: 50}
	pusher := NewPusher(t.Context(), cfg, map[string]string{"component": "worker"}, zaptest.NewLogger(t))

	logger := zap.New(NewCore(zapcore.InfoLevel, pusher)).With(zap.String("domain", "example.social"))
	logger.Info("first")
	logger.Info("second")
	logger.Debug("ignored")
	logger.Warn("third")

	pusher.Stop()

	mu.Lock()
	defer mu.Unlock()

	total := 0
	for _, req := range received {
		require.Len(t, req.Streams, 1)
		assert.Equal(t, "worker", req.Streams[0].Stream["component"])
		total += len(req.Streams[0].Values)

		for _, v := range req.Streams[0].Values {
			var l line
			require.NoError(t, sonic.UnmarshalString(v[1], &l))
			assert.Equal(t, "example.social", l.Fields["domain"])
		}
	}

	assert.Equal(t, 3, total)
	assert.Zero(t, pusher.Dropped())
}

func TestPusherDropsWhenFull(t *testing.T) {
	t.Parallel()

	p := &Pusher{lines: make(chan [2]string, 1)}
	p.Add(line{Message: "a", Time: time.Now().UnixMilli()})
	p.Add(line{Message: "b", Time: time.Now().UnixMilli()})

	assert.Equal(t, int64(1), p.Dropped())
}

package durable

import (
	"context"
	"sync/atomic"
	"time"
)

type heartbeatKey struct{}

type heartbeat struct {
	last atomic.Int64
}

func (h *heartbeat) beat() {
	h.last.Store(time.Now().UnixNano())
}

func (h *heartbeat) since() time.Duration {
	return time.Since(time.Unix(0, h.last.Load()))
}

// Heartbeat signals that the running task is alive.
// It is a no-op outside a task run.
func Heartbeat(ctx context.Context) {
	if h, ok := ctx.Value(heartbeatKey{}).(*heartbeat); ok {
		h.beat()
	}
}

// watchHeartbeat cancels the attempt once no heartbeat arrived within timeout.
func watchHeartbeat(ctx context.Context, h *heartbeat, timeout time.Duration, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(timeout/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.since() > timeout {
				cancel(ErrHeartbeatTimeout)
				return
			}
		}
	}
}

package loki

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/decelerator/internal/setup/config"
	"go.uber.org/zap"
)

// ErrUnexpectedStatusCode is returned when Loki responds with an unexpected status code.
var ErrUnexpectedStatusCode = errors.New("unexpected status code from Loki")

// Pusher batches log lines and ships them to Loki in the background.
type Pusher struct {
	cfg     config.Loki
	labels  map[string]string
	pushURL string
	client  *http.Client
	// fallback receives errors about Loki itself so they never loop back into Loki.
	fallback *zap.Logger

	lines   chan [2]string
	dropped atomic.Int64
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// NewPusher starts a pusher with the given labels attached to every line.
func NewPusher(ctx context.Context, cfg config.Loki, labels map[string]string, fallback *zap.Logger) *Pusher {
	ctx, cancel := context.WithCancel(ctx)

	p := &Pusher{
		cfg:      cfg,
		labels:   labels,
		pushURL:  cfg.URL + "/loki/api/v1/push",
		client:   &http.Client{Timeout: 10 * time.Second},
		fallback: fallback,
		lines:    make(chan [2]string, cfg.BatchMaxSize*2),
		cancel:   cancel,
	}

	p.done.Add(1)

	go p.run(ctx)

	return p
}

// Add queues a line. The line is dropped when the queue is full.
func (p *Pusher) Add(l line) {
	raw, err := sonic.Marshal(l)
	if err != nil {
		return
	}

	value := [2]string{strconv.FormatInt(time.UnixMilli(l.Time).UnixNano(), 10), string(raw)}

	select {
	case p.lines <- value:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns the number of lines dropped because the queue was full.
func (p *Pusher) Dropped() int64 {
	return p.dropped.Load()
}

// Stop flushes pending lines and stops the background goroutine.
func (p *Pusher) Stop() {
	p.cancel()
	p.done.Wait()
}

func (p *Pusher) run(ctx context.Context) {
	defer p.done.Done()

	ticker := time.NewTicker(config.Millis(p.cfg.BatchMaxWaitMS))
	defer ticker.Stop()

	batch := make([][2]string, 0, p.cfg.BatchMaxSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}

		// Use a detached context so the final batch survives shutdown
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := p.send(sendCtx, batch); err != nil {
			p.fallback.Warn("Failed to send Loki batch", zap.Error(err), zap.Int("size", len(batch)))
		}

		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is queued before exiting
			for {
				select {
				case v := <-p.lines:
					batch = append(batch, v)
				default:
					flush()
					return
				}
			}
		case v := <-p.lines:
			batch = append(batch, v)
			if len(batch) >= p.cfg.BatchMaxSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *Pusher) send(ctx context.Context, batch [][2]string) error {
	payload, err := sonic.Marshal(pushRequest{
		Streams: []stream{{Stream: p.labels, Values: batch}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pushURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	if p.cfg.Username != "" && p.cfg.Password != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	return nil
}

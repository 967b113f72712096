// Package delivery buffers resolved reactions per local account and
// announces them to live subscribers.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/pkg/utils"
	"go.uber.org/zap"
)

const (
	bufferKeyPrefix  = "pending:"
	channelKeyPrefix = "reactions:"

	// BufferTTL drops buffers of accounts that stopped flushing.
	BufferTTL = 7 * 24 * time.Hour
)

// flushScript reads and clears a buffer in one step.
var flushScript = rueidis.NewLuaScript(`
local ids = redis.call("LRANGE", KEYS[1], 0, -1)
redis.call("DEL", KEYS[1])
return ids
`)

// Event announces one resolved notification.
type Event struct {
	Domain         string `json:"domain"`
	UserID         string `json:"userId"`
	NotificationID string `json:"notificationId"`
}

// Hub implements the flush buffer and the live channel on Redis.
type Hub struct {
	client rueidis.Client
	retry  utils.RetryOptions
	logger *zap.Logger
}

// NewHub creates a Hub.
func NewHub(client rueidis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		client: client,
		retry:  utils.GetPublishRetryOptions(),
		logger: logger.Named("delivery"),
	}
}

// WithRetry replaces the retry options used when publishing resolved reactions.
func (h *Hub) WithRetry(opts utils.RetryOptions) *Hub {
	h.retry = opts
	return h
}

// Channel returns the pub/sub channel of a local account.
func Channel(domain, userID string) string {
	return channelKeyPrefix + domain + ":" + userID
}

func bufferKey(domain, userID string) string {
	return bufferKeyPrefix + domain + ":" + userID
}

// Publish buffers a resolved notification for the account's next flush and announces it.
func (h *Hub) Publish(ctx context.Context, domain, userID, notificationID string) error {
	payload, err := sonic.Marshal(Event{Domain: domain, UserID: userID, NotificationID: notificationID})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	key := bufferKey(domain, userID)

	for _, resp := range h.client.DoMulti(ctx,
		h.client.B().Rpush().Key(key).Element(notificationID).Build(),
		h.client.B().Expire().Key(key).Seconds(int64(BufferTTL.Seconds())).Build(),
		h.client.B().Publish().Channel(Channel(domain, userID)).Message(rueidis.BinaryString(payload)).Build(),
	) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to publish reaction: %w", err)
		}
	}

	return nil
}

// OnResolved publishes a newly written reaction, retrying while Redis is unavailable.
// The reaction is already stored, so a final failure is only logged.
func (h *Hub) OnResolved(ctx context.Context, reaction *types.UserReaction) {
	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		err := h.Publish(ctx, reaction.Domain, reaction.UserID, reaction.NotificationID)
		if err != nil {
			h.logger.Warn("Publishing reaction failed, retrying",
				zap.String("notificationID", reaction.NotificationID),
				zap.Error(err))
		}

		return struct{}{}, err
	}, h.retry)
	if err != nil {
		h.logger.Error("Failed to deliver reaction",
			zap.String("domain", reaction.Domain),
			zap.String("notificationID", reaction.NotificationID),
			zap.Error(err))
	}
}

// Flush returns the notification ids buffered since the last flush and clears the buffer.
func (h *Hub) Flush(ctx context.Context, domain, userID string) ([]string, error) {
	ids, err := flushScript.Exec(ctx, h.client, []string{bufferKey(domain, userID)}, nil).AsStrSlice()
	if err != nil && !rueidis.IsRedisNil(err) {
		return nil, fmt.Errorf("failed to flush buffer: %w", err)
	}

	// A retried publish may have buffered an id twice
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		out = append(out, id)
	}

	return out, nil
}

// Subscribe calls fn for every reaction resolved for the account until ctx is done.
func (h *Hub) Subscribe(ctx context.Context, domain, userID string, fn func(Event)) error {
	err := h.client.Receive(ctx, h.client.B().Subscribe().Channel(Channel(domain, userID)).Build(),
		func(msg rueidis.PubSubMessage) {
			var event Event
			if err := sonic.UnmarshalString(msg.Message, &event); err != nil {
				h.logger.Warn("Dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				return
			}

			fn(event)
		})
	if err != nil && ctx.Err() != nil {
		return nil
	}

	return err
}

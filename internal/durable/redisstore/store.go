// Package redisstore keeps orchestrator checkpoints in Redis.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
	"github.com/robalyx/decelerator/internal/durable"
)

const keyPrefix = "checkpoint:"

// Store implements durable.CheckpointStore on Redis.
type Store struct {
	client rueidis.Client
}

var _ durable.CheckpointStore = (*Store)(nil)

// New creates a checkpoint store.
func New(client rueidis.Client) *Store {
	return &Store{client: client}
}

// Save implements durable.CheckpointStore.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	cmd := s.client.B().Set().Key(keyPrefix + key).Value(rueidis.BinaryString(payload)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}

	return nil
}

// Load implements durable.CheckpointStore.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(keyPrefix+key).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return nil, durable.ErrNoCheckpoint
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return payload, nil
}

// Delete implements durable.CheckpointStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(keyPrefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	return nil
}

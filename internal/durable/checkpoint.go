package durable

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrNoCheckpoint is returned when no checkpoint is stored under a key.
var ErrNoCheckpoint = errors.New("no checkpoint stored")

// CheckpointStore persists restart arguments of orchestrator instances.
type CheckpointStore interface {
	Save(ctx context.Context, key string, payload []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SaveCheckpoint encodes input and stores it under key.
func SaveCheckpoint[T any](ctx context.Context, store CheckpointStore, key string, input T) error {
	payload, err := sonic.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := store.Save(ctx, key, payload); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}

	return nil
}

// LoadCheckpoint loads and decodes the checkpoint under key.
// Returns ErrNoCheckpoint when none exists.
func LoadCheckpoint[T any](ctx context.Context, store CheckpointStore, key string) (T, error) {
	var input T

	payload, err := store.Load(ctx, key)
	if err != nil {
		return input, err
	}

	if err := sonic.Unmarshal(payload, &input); err != nil {
		return input, fmt.Errorf("failed to decode checkpoint %s: %w", key, err)
	}

	return input, nil
}

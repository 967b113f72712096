package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/robalyx/decelerator/pkg/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextSleep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		duration       time.Duration
		cancelAfter    time.Duration
		expectedResult utils.SleepResult
	}{
		{
			name:           "sleep completes normally",
			duration:       10 * time.Millisecond,
			cancelAfter:    0, // no cancellation
			expectedResult: utils.SleepCompleted,
		},
		{
			name:           "context cancelled before sleep completes",
			duration:       time.Second,
			cancelAfter:    10 * time.Millisecond,
			expectedResult: utils.SleepCancelled,
		},
		{
			name:           "zero duration sleep",
			duration:       0,
			cancelAfter:    0,
			expectedResult: utils.SleepCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			if tt.cancelAfter > 0 {
				go func() {
					time.Sleep(tt.cancelAfter)
					cancel()
				}()
			}

			assert.Equal(t, tt.expectedResult, utils.ContextSleep(ctx, tt.duration))
		})
	}
}

func TestContextSleepZeroDurationCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.Equal(t, utils.SleepCancelled, utils.ContextSleep(ctx, 0))
}

func TestContextSleepWithLog(t *testing.T) {
	t.Parallel()

	t.Run("logs on cancellation", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.InfoLevel)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		result := utils.ContextSleepWithLog(ctx, time.Second, zap.New(core), "stopping")
		assert.Equal(t, utils.SleepCancelled, result)
		assert.Equal(t, 1, logs.FilterMessage("stopping").Len())
	})

	t.Run("silent on completion", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.InfoLevel)

		result := utils.ContextSleepWithLog(t.Context(), time.Millisecond, zap.New(core), "stopping")
		assert.Equal(t, utils.SleepCompleted, result)
		assert.Zero(t, logs.Len())
	})

	t.Run("nil logger", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.Equal(t, utils.SleepCancelled, utils.ContextSleepWithLog(ctx, time.Second, nil, "stopping"))
	})
}

func TestContextGuard(t *testing.T) {
	t.Parallel()

	assert.False(t, utils.ContextGuard(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.True(t, utils.ContextGuard(ctx))
}

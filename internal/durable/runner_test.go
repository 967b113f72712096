package durable_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/durable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errTransient = errors.New("transient")

func fastPolicy(name string) durable.Policy {
	return durable.Policy{
		Name:            name,
		Timeout:         time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxAttempts:     3,
	}
}

func TestRunRetries(t *testing.T) {
	t.Parallel()

	history := durable.NewHistory(0)
	runner := durable.NewRunner(history, zaptest.NewLogger(t))

	calls := 0
	err := runner.Run(t.Context(), fastPolicy("flaky"), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// scheduled + failed twice, then scheduled + completed
	assert.Equal(t, 6, history.Len())
}

func TestRunGivesUp(t *testing.T) {
	t.Parallel()

	runner := durable.NewRunner(nil, zaptest.NewLogger(t))

	calls := 0
	err := runner.Run(t.Context(), fastPolicy("broken"), func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)

	var taskErr *durable.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, uint64(3), taskErr.Attempts)
	assert.Equal(t, "broken", taskErr.Task)
}

func TestRunNonRetryable(t *testing.T) {
	t.Parallel()

	runner := durable.NewRunner(nil, zaptest.NewLogger(t))

	t.Run("marked error", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := runner.Run(t.Context(), fastPolicy("marked"), func(context.Context) error {
			calls++
			return durable.NonRetryable(errTransient)
		})
		require.ErrorIs(t, err, errTransient)
		assert.True(t, durable.IsNonRetryable(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("policy classifier", func(t *testing.T) {
		t.Parallel()

		policy := fastPolicy("classified").WithNonRetryable(func(err error) bool {
			return errors.Is(err, errTransient)
		})

		calls := 0
		err := runner.Run(t.Context(), policy, func(context.Context) error {
			calls++
			return errTransient
		})
		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	})
}

func TestExecuteReturnsValue(t *testing.T) {
	t.Parallel()

	runner := durable.NewRunner(nil, zaptest.NewLogger(t))

	got, err := durable.Execute(t.Context(), runner, fastPolicy("value"), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestAttemptTimeout(t *testing.T) {
	t.Parallel()

	runner := durable.NewRunner(nil, zaptest.NewLogger(t))
	policy := fastPolicy("slow")
	policy.Timeout = 20 * time.Millisecond
	policy.MaxAttempts = 1

	err := runner.Run(t.Context(), policy, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, durable.ErrAttemptTimeout)
}

func TestHeartbeatWatchdog(t *testing.T) {
	t.Parallel()

	runner := durable.NewRunner(nil, zaptest.NewLogger(t))

	policy := fastPolicy("walk")
	policy.Timeout = 5 * time.Second
	policy.HeartbeatTimeout = 40 * time.Millisecond
	policy.MaxAttempts = 1

	t.Run("alive", func(t *testing.T) {
		t.Parallel()

		err := runner.Run(t.Context(), policy, func(ctx context.Context) error {
			for range 10 {
				durable.Heartbeat(ctx)
				time.Sleep(10 * time.Millisecond)
			}

			return ctx.Err()
		})
		require.NoError(t, err)
	})

	t.Run("stalled", func(t *testing.T) {
		t.Parallel()

		err := runner.Run(t.Context(), policy, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.ErrorIs(t, err, durable.ErrHeartbeatTimeout)
	})
}

func TestHistoryThreshold(t *testing.T) {
	t.Parallel()

	history := durable.NewHistory(4)
	runner := durable.NewRunner(history, zaptest.NewLogger(t))

	for range 2 {
		assert.False(t, history.ContinueAsNewSuggested())
		require.NoError(t, runner.Run(t.Context(), fastPolicy("noop"), func(context.Context) error { return nil }))
	}

	assert.True(t, history.ContinueAsNewSuggested())
	assert.Len(t, history.Recent(), 4)
}

func TestContinueAsNew(t *testing.T) {
	t.Parallel()

	type input struct{ Queue []string }

	err := durable.ContinueAsNew(input{Queue: []string{"a"}})

	got, ok := durable.AsContinueAsNew[input](err)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, got.Queue)

	_, ok = durable.AsContinueAsNew[string](err)
	assert.False(t, ok)

	_, ok = durable.AsContinueAsNew[input](errTransient)
	assert.False(t, ok)
}

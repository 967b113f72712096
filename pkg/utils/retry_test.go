package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robalyx/decelerator/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTemporary = errors.New("temporary error")
	errFatal     = errors.New("fatal error")
)

func testOptions() utils.RetryOptions {
	return utils.RetryOptions{
		MaxElapsedTime:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		failures      int
		failWith      error
		permanent     func(error) bool
		expectedCalls int
		expectedErr   error
	}{
		{
			name:          "succeeds first try",
			expectedCalls: 1,
		},
		{
			name:          "succeeds after retries",
			failures:      2,
			failWith:      errTemporary,
			expectedCalls: 3,
		},
		{
			name:          "fails all retries",
			failures:      10,
			failWith:      errTemporary,
			expectedCalls: 4, // Initial + 3 retries
			expectedErr:   errTemporary,
		},
		{
			name:          "permanent error stops early",
			failures:      10,
			failWith:      errFatal,
			permanent:     func(err error) bool { return errors.Is(err, errFatal) },
			expectedCalls: 1,
			expectedErr:   errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			opts := testOptions()
			opts.Permanent = tt.permanent

			result, err := utils.WithRetry(t.Context(), func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", tt.failWith
				}

				return "ok", nil
			}, opts)

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ok", result)
			}

			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestWithRetryContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0
	_, err := utils.WithRetry(ctx, func() (int, error) {
		calls++
		return 0, errTemporary
	}, testOptions())

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

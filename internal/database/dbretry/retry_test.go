package dbretry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/robalyx/decelerator/internal/database/dbretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConstraint = errors.New("UNIQUE constraint failed: accounts.domain")

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "constraint", err: errConstraint, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestOperation(t *testing.T) {
	t.Parallel()

	t.Run("retries transient errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		got, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("database is locked")
			}

			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := dbretry.NoResult(t.Context(), func(context.Context) error {
			attempts++
			return errConstraint
		})

		require.ErrorIs(t, err, errConstraint)
		assert.Equal(t, 1, attempts)
	})
}

package fediverse_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/stretchr/testify/assert"
)

func TestCompareIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "110", "110", 0},
		{"shorter is older", "99", "100", -1},
		{"longer is newer", "1000", "999", 1},
		{"lexical same length", "abc", "abd", -1},
		{"aid ids", "9ks0w6oq3k", "9ks0w6oq3j", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fediverse.CompareIDs(tt.a, tt.b))
		})
	}
}

func TestIDBounds(t *testing.T) {
	t.Parallel()

	oldest, newest := fediverse.IDBounds([]string{"105", "99", "1000", "101"})
	assert.Equal(t, "99", oldest)
	assert.Equal(t, "1000", newest)

	oldest, newest = fediverse.IDBounds(nil)
	assert.Empty(t, oldest)
	assert.Empty(t, newest)
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", fmt.Errorf("wrapped: %w", fediverse.ErrUnauthorized), true},
		{"invalid response", fediverse.ErrInvalidResponse, true},
		{"not found", &fediverse.HTTPError{StatusCode: 404}, true},
		{"server error", &fediverse.HTTPError{StatusCode: 502}, false},
		{"request timeout", &fediverse.HTTPError{StatusCode: 408}, false},
		{"rate limited", &fediverse.RateLimitError{RetryAfter: time.Minute}, false},
		{"network", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fediverse.IsPermanent(tt.err))
		})
	}
}

func TestRateLimitError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("failed to list: %w", &fediverse.RateLimitError{RetryAfter: 90 * time.Second})
	assert.ErrorIs(t, err, fediverse.ErrRateLimited)
	assert.Equal(t, 90*time.Second, fediverse.RetryAfter(err))
	assert.Zero(t, fediverse.RetryAfter(errors.New("other")))
}

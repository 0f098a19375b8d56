package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestDo_NonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errFlaky) },
	}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"single attempt", Policy{MaxAttempts: 1}, false},
		{"with delays", Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}, false},
		{"zero attempts", Policy{}, true},
		{"max below base", Policy{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: time.Second}, true},
		{"negative base", Policy{MaxAttempts: 3, BaseDelay: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPolicy)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		d := Backoff(attempt, base, 50*time.Millisecond)
		exp := base * (1 << attempt)
		if exp > 50*time.Millisecond {
			exp = 50 * time.Millisecond
		}
		assert.GreaterOrEqual(t, d, exp)
		assert.Less(t, d, exp+base)
	}
	assert.Zero(t, Backoff(3, 0, time.Second))
	assert.Positive(t, Backoff(100, time.Millisecond, 0))
}

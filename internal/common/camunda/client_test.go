package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"fleet-compliance/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"deadline", stderrors.New("rpc error: context deadline exceeded"), errors.ErrCodeTimeout},
		{"exhausted", stderrors.New("RESOURCE_EXHAUSTED: backpressure"), errors.ErrCodeRateLimited},
		{"not found", stderrors.New("process not found"), errors.ErrCodeNotFound},
		{"exists", stderrors.New("job already exists"), errors.ErrCodeConflict},
		{"other", stderrors.New("connection refused"), errors.ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, errors.CodeOf(MapZeebeError(tt.err, "publish")))
		})
	}
	assert.NoError(t, MapZeebeError(nil, "noop"))
}

func TestRetry(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("recovers from transient errors", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, "op", func(context.Context) error {
			calls++
			if calls < 3 {
				return stderrors.New("unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), cfg, "op", func(context.Context) error {
			calls++
			return stderrors.New("already exists")
		})
		require.Error(t, err)
		assert.True(t, errors.IsConflict(err))
		assert.Equal(t, 1, calls)
	})
}

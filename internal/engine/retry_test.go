package engine

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))

	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(context.Canceled))

	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeInferenceUnavailable, "x")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeTimeout, "x")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeCircuitOpen, "x")))

	assert.False(t, IsRetryableError(schema.NewError(schema.ErrCodeValidationFailed, "x")))
	assert.False(t, IsRetryableError(schema.NewError(schema.ErrCodeSourceUnavailable, "x")))
	assert.False(t, IsRetryableError(schema.NewError(schema.ErrCodeInvalidArgument, "x")))

	assert.True(t, IsRetryableError(&net.DNSError{Err: "lookup failed", IsTimeout: true}))
	assert.False(t, IsRetryableError(errors.New("something else")))
}

func TestComputeBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}

	assert.Equal(t, 500*time.Millisecond, ComputeBackoff(policy, 0))
	assert.Equal(t, time.Second, ComputeBackoff(policy, 1))
	assert.Equal(t, 2*time.Second, ComputeBackoff(policy, 2))
	assert.Equal(t, 4*time.Second, ComputeBackoff(policy, 3))
	assert.Equal(t, 8*time.Second, ComputeBackoff(policy, 4))
	assert.Equal(t, 10*time.Second, ComputeBackoff(policy, 5))
	assert.Equal(t, 10*time.Second, ComputeBackoff(policy, 20))
}

func TestComputeBackoff_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), ComputeBackoff(RetryPolicy{}, 3))
}

func TestWaitForBackoff(t *testing.T) {
	start := time.Now()
	require.NoError(t, WaitForBackoff(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestWaitForBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForBackoff(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForBackoff_ZeroDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, WaitForBackoff(ctx, 0))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
}

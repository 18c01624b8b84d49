package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Redis address - uses docker-compose setup
const testRedisAddr = "localhost:6380"

func newTestBudget(t *testing.T) *Budget {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { client.Close() })

	b := NewBudget(client, "test-"+t.Name())
	for _, key := range b.keys(time.Now()) {
		client.Del(context.Background(), key)
	}
	return b
}

func TestBudget_CheckAndIncrement_Normal(t *testing.T) {
	b := newTestBudget(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.CheckAndIncrement(ctx, 100))
	}

	rpm, tpm, rpd, err := b.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rpm)
	assert.Equal(t, int64(1000), tpm)
	assert.Equal(t, int64(10), rpd)
}

func TestBudget_RPMThrottle(t *testing.T) {
	b := newTestBudget(t).WithLimits(10, DefaultTPM, DefaultRPD)
	ctx := context.Background()

	// 90% of 10 = 9, so the 9th request crosses the threshold
	for i := 0; i < 8; i++ {
		require.NoError(t, b.CheckAndIncrement(ctx, 1))
	}
	err := b.CheckAndIncrement(ctx, 1)
	require.Error(t, err)

	var throttle *ThrottleError
	require.True(t, errors.As(err, &throttle))
	assert.Equal(t, "RPM", throttle.Limit)
	assert.False(t, throttle.Daily())
	assert.Greater(t, throttle.Wait, time.Duration(0))
}

func TestBudget_DailyQuotaIsNotRetried(t *testing.T) {
	b := newTestBudget(t).WithLimits(1000, DefaultTPM, 2)
	ctx := context.Background()

	require.NoError(t, b.CheckAndIncrement(ctx, 1))

	start := time.Now()
	err := b.Acquire(ctx, 1)
	var throttle *ThrottleError
	require.True(t, errors.As(err, &throttle))
	assert.True(t, throttle.Daily())
	assert.Less(t, time.Since(start), time.Second, "daily quota must fail fast")
}

func TestThrottleError_Message(t *testing.T) {
	err := &ThrottleError{Limit: "TPM", Current: 950, Max: 1000, Wait: 12 * time.Second}
	assert.Equal(t, "approaching TPM limit (950/1000), wait 12s", err.Error())

	daily := &ThrottleError{Limit: "RPD", Current: 10, Max: 10, Wait: time.Hour}
	assert.Contains(t, daily.Error(), "daily quota exceeded")
}

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
)

func TestOrderLimiter_NilAllowsEverything(t *testing.T) {
	var l *OrderLimiter
	ctx := context.Background()

	decision, err := l.AllowAutosave(ctx, "store-1", "1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	token, ok, err := l.TryLockTransition(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.ReleaseTransition(ctx, "1", token))
}

func TestNewOrderLimiter_DisabledReturnsNil(t *testing.T) {
	l, err := NewOrderLimiter(nil, config.Config{})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.False(t, l.Enabled())
}

func TestNewOrderLimiter_RequiresAddr(t *testing.T) {
	cfg := config.Config{}
	cfg.Authority.RateLimit.Enabled = true
	_, err := NewOrderLimiter(nil, cfg)
	assert.Error(t, err)
}

func TestNewOrderLimiterWithClient_RejectsBadRates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewOrderLimiterWithClient(client, config.RateLimitConfig{AutosaveRate: 0, AutosaveBurst: 1, TransitionTTL: time.Second})
	assert.Error(t, err)
	_, err = NewOrderLimiterWithClient(client, config.RateLimitConfig{AutosaveRate: 1, AutosaveBurst: 1})
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestOrderLimiter_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewOrderLimiterWithClient(client, config.RateLimitConfig{
		AutosaveRate:  0.01,
		AutosaveBurst: 2,
		TransitionTTL: 5 * time.Second,
	})
	require.NoError(t, err)

	ctx := context.Background()
	order := uuid.NewString()

	for i := 0; i < 2; i++ {
		decision, err := l.AllowAutosave(ctx, "store-1", order)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
	decision, err := l.AllowAutosave(ctx, "store-1", order)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Positive(t, decision.RetryAfter)

	token, ok, err := l.TryLockTransition(ctx, order)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLockTransition(ctx, order)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.ReleaseTransition(ctx, order, token))
	_, ok, err = l.TryLockTransition(ctx, order)
	require.NoError(t, err)
	assert.True(t, ok)
}

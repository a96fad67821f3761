package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
)

const (
	keyAutosave   = "po:autosave:%s:%s"
	keyTransition = "po:transition:%s"
)

// OrderLimiter throttles autosave writes per order and holds a lease while
// an order moves through a lifecycle transition. A nil or disabled limiter
// allows everything.
type OrderLimiter struct {
	enabled bool

	client redis.UniversalClient
	bucket *TokenBucket
	locker *Locker

	autosaveRate  float64
	autosaveBurst int
	transitionTTL time.Duration
}

func NewOrderLimiter(lc fx.Lifecycle, cfg config.Config) (*OrderLimiter, error) {
	limitCfg := cfg.Authority.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: limitCfg.RedisPassword,
		DB:       limitCfg.RedisDB,
	})
	limiter, err := NewOrderLimiterWithClient(client, limitCfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return limiter, nil
}

func NewOrderLimiterWithClient(client redis.UniversalClient, limitCfg config.RateLimitConfig) (*OrderLimiter, error) {
	if limitCfg.AutosaveRate <= 0 || limitCfg.AutosaveBurst <= 0 {
		return nil, errors.New("autosave rate limit must be positive")
	}
	if limitCfg.TransitionTTL <= 0 {
		return nil, errors.New("transition lock ttl must be positive")
	}
	return &OrderLimiter{
		enabled:       true,
		client:        client,
		bucket:        NewTokenBucket(client),
		locker:        NewLocker(client),
		autosaveRate:  limitCfg.AutosaveRate,
		autosaveBurst: limitCfg.AutosaveBurst,
		transitionTTL: limitCfg.TransitionTTL,
	}, nil
}

func (l *OrderLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *OrderLimiter) AllowAutosave(ctx context.Context, storeID, orderID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyAutosave, strings.TrimSpace(storeID), strings.TrimSpace(orderID))
	return l.bucket.Allow(ctx, key, l.autosaveRate, l.autosaveBurst)
}

// TryLockTransition returns ok=false when another request holds the order.
func (l *OrderLimiter) TryLockTransition(ctx context.Context, orderID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyTransition, strings.TrimSpace(orderID)), l.transitionTTL)
}

func (l *OrderLimiter) ReleaseTransition(ctx context.Context, orderID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyTransition, strings.TrimSpace(orderID)), token)
}

package draftstore

import (
	"context"
	"errors"
	"strings"

	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/logger"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

var Module = fx.Module("draftstore",
	fx.Provide(New),
)

// Lister enumerates stored draft keys of a store.
type Lister interface {
	Keys(ctx context.Context, storeID string) ([]string, error)
}

// Purger removes expired entries. Backends with native expiry do not
// implement it.
type Purger interface {
	PurgeExpired(ctx context.Context, limit int) (int64, error)
}

// Store is the draft store with listing support.
type Store interface {
	domain.DraftStore
	Lister
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Scheduler
}

// New opens the configured draft store backend.
func New(p Params) (Store, error) {
	drafts := p.Cfg.Drafts
	switch drafts.Store {
	case config.DraftStoreRedis:
		addr := strings.TrimSpace(drafts.RedisAddr)
		if addr == "" {
			return nil, errors.New("draft store redis addr is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: drafts.RedisPassword,
			DB:       drafts.RedisDB,
		})
		store := NewRedisStore(client, drafts.TTL, p.Log)
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return store.Close()
			},
		})
		return store, nil
	default:
		db, err := gorm.Open(sqlite.Open(drafts.SQLitePath), &gorm.Config{
			Logger: logger.NewGormLogger(p.Log, logger.DefaultGormLoggerConfig()),
		})
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
		store, err := NewGormStore(db, p.Clock, drafts.TTL, p.Log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

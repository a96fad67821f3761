package draftstore

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

// RedisStore keeps drafts as JSON strings with an optional expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{client: client, ttl: ttl, log: log.Named("draftstore.redis")}
}

func (s *RedisStore) Load(ctx context.Context, key string) (*domain.Document, error) {
	body, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	doc, err := domain.DecodeDocument(body)
	if err != nil {
		s.log.Warn("discarding corrupt draft", zap.String("draft_key", key), zap.Error(err))
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			s.log.Warn("failed to delete corrupt draft", zap.String("draft_key", key), zap.Error(delErr))
		}
		return nil, err
	}
	return &doc, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, doc domain.Document) error {
	body, err := domain.EncodeDocument(doc)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, body, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Keys lists stored keys for a store.
func (s *RedisStore) Keys(ctx context.Context, storeID string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, storePrefix(storeID)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ domain.DraftStore = (*RedisStore)(nil)

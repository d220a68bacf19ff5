package store

import (
	"context"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces consumed-challenge keys
const DefaultPrefix = "certify:challenge:"

// RedisStore is a Redis implementation of the ReplayGuard interface
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultPrefix,
	}
}

var _ ports.ReplayGuard = (*RedisStore)(nil)

// Consume sets the key only if absent, so concurrent replays race on Redis
func (s *RedisStore) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrapf(core.ErrLedgerUnavailable, "failed to consume challenge: %v", err)
	}
	return ok, nil
}

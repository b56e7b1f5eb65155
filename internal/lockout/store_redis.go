package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore counts failures in Redis so the lockout survives restarts and
// is shared across replicas.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

func NewRedis(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ballotgate:lockout:"}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	// NX so the window starts at the first failure and is not extended by
	// later ones.
	pipe.ExpireNX(ctx, full, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("lockout incr: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, s.prefix+key).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("lockout count: %w", err)
	}
	return count, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("lockout clear: %w", err)
	}
	return nil
}

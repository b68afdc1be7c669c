package commitment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkattend/pkg/platform/sentinel"
)

// redisKeyPrefix namespaces nullifier keys so the set can share a Redis
// instance with other data.
const redisKeyPrefix = "zkattend:nullifier:"

// RedisNullifierStore backs the nullifier set with Redis so multiple
// verifier replicas share one replay guard. SET NX gives the same atomic
// check-and-insert contract as the in-memory store. Keys never expire:
// nullifiers are permanent.
type RedisNullifierStore struct {
	client *redis.Client
}

// NewRedisNullifierStore wraps an already-connected client.
func NewRedisNullifierStore(client *redis.Client) *RedisNullifierStore {
	return &RedisNullifierStore{client: client}
}

func (s *RedisNullifierStore) Register(ctx context.Context, nullifierHash string) (bool, error) {
	accepted, err := s.client.SetNX(ctx, redisKeyPrefix+nullifierHash,
		time.Now().UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return false, fmt.Errorf("register nullifier: %w: %w", sentinel.ErrUnavailable, err)
	}
	return accepted, nil
}

func (s *RedisNullifierStore) Seen(ctx context.Context, nullifierHash string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+nullifierHash).Result()
	if err != nil {
		return false, fmt.Errorf("check nullifier: %w: %w", sentinel.ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisNullifierStore) Count(ctx context.Context) (int, error) {
	var total int
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("count nullifiers: %w: %w", sentinel.ErrUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

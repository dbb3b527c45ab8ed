package blocklist

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store answers block-relationship queries. The blocklist itself is
// owned by another service; the hub only reads it at delivery time.
type Store interface {
	HasBlock(ctx context.Context, blockerID, blockedID string) (bool, error)
	AnyBlockBetween(ctx context.Context, userA, userB string) (bool, error)
}

// RedisStore reads block sets of the form blocks:<userId>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func blockKey(userID string) string {
	return fmt.Sprintf("blocks:%s", userID)
}

// HasBlock reports whether blockerID has blocked blockedID.
func (s *RedisStore) HasBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	return s.client.SIsMember(ctx, blockKey(blockerID), blockedID).Result()
}

// AnyBlockBetween reports whether a block exists in either direction.
func (s *RedisStore) AnyBlockBetween(ctx context.Context, userA, userB string) (bool, error) {
	blocked, err := s.HasBlock(ctx, userA, userB)
	if err != nil || blocked {
		return blocked, err
	}
	return s.HasBlock(ctx, userB, userA)
}

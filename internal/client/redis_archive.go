package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrArchiveNotFound is returned when an archive expired or never existed.
var ErrArchiveNotFound = errors.New("archive not found")

// RedisArchiveStore keeps archives in redis when no object storage is
// configured. Links point back at the console's own archive endpoint.
type RedisArchiveStore struct {
	redis *redis.Client
	ttl   time.Duration
	link  func(key string) string
}

// NewRedisArchiveStore creates a store whose links are built by link.
func NewRedisArchiveStore(redisClient *redis.Client, ttl time.Duration, link func(key string) string) *RedisArchiveStore {
	return &RedisArchiveStore{redis: redisClient, ttl: ttl, link: link}
}

func archiveKey(key string) string {
	return fmt.Sprintf("archive:%s", key)
}

func (s *RedisArchiveStore) PutArchive(ctx context.Context, key string, data []byte) error {
	if err := s.redis.Set(ctx, archiveKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store archive: %w", err)
	}
	return nil
}

// SignedURL returns the console link. The expiry is bounded by the redis TTL.
func (s *RedisArchiveStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return s.link(key), nil
}

func (s *RedisArchiveStore) DeleteArchive(ctx context.Context, key string) error {
	return s.redis.Del(ctx, archiveKey(key)).Err()
}

// GetArchive returns archive bytes for the console archive endpoint.
func (s *RedisArchiveStore) GetArchive(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, archiveKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrArchiveNotFound
		}
		return nil, err
	}
	return data, nil
}

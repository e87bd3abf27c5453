package dedupe

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps records as fields of a single Redis hash
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// OpenRedisStore connects to addr and verifies the server answers
func OpenRedisStore(ctx context.Context, addr, password, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedisStore(client, key), nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "remote_dedupe"
	}
	return &RedisStore{client: client, key: key}
}

// Get returns the recorded fingerprint for name
func (s *RedisStore) Get(ctx context.Context, name string) (string, bool, error) {
	fingerprint, err := s.client.HGet(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return fingerprint, true, nil
}

// Put records fingerprint for name
func (s *RedisStore) Put(ctx context.Context, name string, fingerprint string) error {
	if err := s.client.HSet(ctx, s.key, name, fingerprint).Err(); err != nil {
		return fmt.Errorf("failed to put fingerprint: %w", err)
	}
	return nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

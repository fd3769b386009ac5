package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV is a Redis-backed implementation of KV. Records of one bucket share
// a key prefix; Keys scans that prefix.
type RedisKV struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisKV creates a new Redis-backed key-value store and verifies the
// connection before returning.
func NewRedisKV(cfg Config) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	dialTimeout := cfg.Redis.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentswarm:"
	}

	return &RedisKV{client: client, keyPrefix: keyPrefix}, nil
}

// NewRedisKVFromClient wraps an existing client; used by tests.
func NewRedisKVFromClient(client *redis.Client, keyPrefix string) *RedisKV {
	if keyPrefix == "" {
		keyPrefix = "agentswarm:"
	}
	return &RedisKV{client: client, keyPrefix: keyPrefix}
}

func (s *RedisKV) key(bucket, key string) string {
	return s.keyPrefix + bucket + ":" + key
}

// Put stores value under (bucket, key).
func (s *RedisKV) Put(ctx context.Context, bucket, key string, value any) error {
	if bucket == "" || key == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(bucket, key), data, 0).Err()
}

// Get loads the record at (bucket, key) into out.
func (s *RedisKV) Get(ctx context.Context, bucket, key string, out any) error {
	data, err := s.client.Get(ctx, s.key(bucket, key)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Delete removes the record at (bucket, key).
func (s *RedisKV) Delete(ctx context.Context, bucket, key string) error {
	return s.client.Del(ctx, s.key(bucket, key)).Err()
}

// Keys lists all keys in a bucket by scanning the bucket prefix.
func (s *RedisKV) Keys(ctx context.Context, bucket string) ([]string, error) {
	prefix := s.keyPrefix + bucket + ":"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Ping checks if the store is healthy.
func (s *RedisKV) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store.
func (s *RedisKV) Close() error {
	return s.client.Close()
}

var _ KV = (*RedisKV)(nil)

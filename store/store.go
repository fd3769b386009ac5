// Package store provides the key-value persistence abstraction behind the
// coordination services. All swarm state is keyed records; services talk to
// the KV interface and never to a concrete backend, so a durable backend can
// replace the default in-memory table without touching any service.
//
// Supported backends:
//   - Memory: the default; single-process, state is lost on restart
//   - Redis: for deployments that want records to survive a restart
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Backend represents the type of storage backend.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Host is the Redis server host.
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port.
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional).
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number.
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// DialTimeout bounds the initial connection check.
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// Config is the configuration for the KV factory.
type Config struct {
	// Backend is the storage backend type.
	Backend Backend `json:"backend" yaml:"backend"`

	// Redis configuration (only used when Backend is "redis").
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DB:          0,
			PoolSize:    10,
			KeyPrefix:   "agentswarm:",
			DialTimeout: 5 * time.Second,
		},
	}
}

// KV is the record store interface. Values are JSON-encoded; buckets group
// records of one kind (advertisements, contracts, delegation records, ...).
type KV interface {
	// Put stores value under (bucket, key), creating or replacing it.
	Put(ctx context.Context, bucket, key string, value any) error

	// Get loads the record at (bucket, key) into out.
	// Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, bucket, key string, out any) error

	// Delete removes the record at (bucket, key). Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Keys lists all keys in a bucket, in unspecified order.
	Keys(ctx context.Context, bucket string) ([]string, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// New creates a KV backed by the configured backend.
func New(cfg Config) (KV, error) {
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisKV(cfg)
	case BackendMemory, "":
		return NewMemoryKV(), nil
	default:
		return nil, errors.New("unknown store backend: " + string(cfg.Backend))
	}
}

// Package cache provides the result cache drivers: a strict TTL+LRU
// in-memory client and a Redis client for multi-process deployments.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

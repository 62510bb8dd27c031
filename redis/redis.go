// Package redis provides Redis-backed implementations of storage.Store,
// ios.KeyStore and challenge.Store, so key handles, simulator keys and
// outstanding challenges can be shared between processes.
//
// This package requires a Redis client to be passed in, giving you full control
// over connection pooling, timeouts, and clustering configuration.
//
// Supported Redis clients:
//   - github.com/redis/go-redis/v9
//   - Any client implementing the Cmdable interface
package redis

import (
	"context"
	"time"
)

// Cmdable is the interface for Redis commands.
// This is compatible with github.com/redis/go-redis/v9.Client and ClusterClient.
type Cmdable interface {
	Get(ctx context.Context, key string) StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) BoolCmd
	Del(ctx context.Context, keys ...string) IntCmd
	Incr(ctx context.Context, key string) IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) BoolCmd
}

// StringCmd is the interface for string command results.
type StringCmd interface {
	Result() (string, error)
}

// StatusCmd is the interface for status command results.
type StatusCmd interface {
	Err() error
}

// BoolCmd is the interface for bool command results.
type BoolCmd interface {
	Result() (bool, error)
}

// IntCmd is the interface for int command results.
type IntCmd interface {
	Result() (int64, error)
}

// isNil checks if the error is a redis.Nil error.
// We check the error string to avoid importing go-redis directly.
func isNil(err error) bool {
	return err != nil && err.Error() == "redis: nil"
}

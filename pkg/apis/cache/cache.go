package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, content []byte, duration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RequestOptions controls how a single request interacts with the cache.
type RequestOptions struct {
	ForceRefresh bool
	TTL          time.Duration
}

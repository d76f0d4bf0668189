package redis

import (
	"context"
	"time"

	r "gopkg.in/redis.v5"
)

const prefix = "_RP_"

// Cache stores widget content and other computed responses in redis.
type Cache struct {
	client *r.Client
}

func NewRedisCache(url string) (*Cache, error) {
	var opts *r.Options
	var err error

	if opts, err = r.ParseURL(url); err != nil {
		return nil, err
	}

	return &Cache{
		client: r.NewClient(opts),
	}, nil
}

func (c Cache) Get(_ context.Context, key string) ([]byte, error) {
	return c.client.Get(prefix + key).Bytes()
}

func (c Cache) Set(_ context.Context, key string, content []byte, duration time.Duration) error {
	return c.client.Set(prefix+key, content, duration).Err()
}

func (c Cache) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = prefix + k
	}
	return c.client.Del(prefixed...).Err()
}

// Ping checks the connection, used by the health endpoint.
func (c Cache) Ping() error {
	return c.client.Ping().Err()
}

func (c Cache) Close() error {
	return c.client.Close()
}

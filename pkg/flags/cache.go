package flags

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/reportportal/service-api/pkg/apis/cache"
	"github.com/reportportal/service-api/pkg/cache/compressed"
	"github.com/reportportal/service-api/pkg/cache/redis"
)

// CacheFlags holds the location of the widget content cache.
type CacheFlags struct {
	RedisURL string
	TTL      time.Duration
}

func NewCacheFlags() *CacheFlags {
	return &CacheFlags{}
}

func (f *CacheFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.RedisURL,
		"redis-url",
		os.Getenv("REDIS_URL"),
		"Redis URL for caching widget content")
	fs.DurationVar(&f.TTL, "widget-cache-ttl", 0, "How long widget content is cached, overrides the config file")
}

// GetCacheClient returns nil when no cache is configured; widgets are then computed on
// every request.
func (f *CacheFlags) GetCacheClient() (cache.Cache, error) {
	if f.RedisURL == "" {
		return nil, nil
	}
	c, err := redis.NewRedisCache(f.RedisURL)
	if err != nil {
		return nil, err
	}
	return compressed.NewCompressedCache(c)
}

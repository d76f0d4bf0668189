package api

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reportportal/service-api/pkg/apis/cache"
)

var defaultCacheDuration = 10 * time.Minute

// GetFromCacheOrGenerate attempts to find a cached value, otherwise generates and caches it.
// Generation errors are not cached.
func GetFromCacheOrGenerate[T any](ctx context.Context, c cache.Cache, cacheOptions cache.RequestOptions, cacheKey interface{}, generateFn func() (T, error), defaultVal T) (T, error) {
	// an uncacheable key is a programming error and should surface in tests
	if isStructWithNoPublicFields(cacheKey) {
		panic(fmt.Sprintf("you cannot use struct %s with no exported fields as a cache key", reflect.TypeOf(cacheKey)))
	} else if cacheKey == "" {
		panic(fmt.Sprintf("you cannot use empty string as a cache key for %s", reflect.TypeOf(defaultVal)))
	} else if cacheKey == nil {
		panic(fmt.Sprintf("cache key is nil for %s", reflect.TypeOf(defaultVal)))
	}

	if c == nil {
		return generateFn()
	}

	jsonCacheKey, err := json.Marshal(cacheKey)
	if err != nil {
		return defaultVal, err
	}

	if !cacheOptions.ForceRefresh {
		if res, err := c.Get(ctx, string(jsonCacheKey)); err == nil {
			log.WithFields(log.Fields{
				"key":  string(jsonCacheKey),
				"type": reflect.TypeOf(defaultVal).String(),
			}).Debugf("cache hit")
			var cr T
			if err := json.Unmarshal(res, &cr); err != nil {
				return defaultVal, err
			}
			return cr, nil
		}
		log.Debugf("cache miss for cache key: %s", string(jsonCacheKey))
	}

	result, err := generateFn()
	if err != nil {
		return result, err
	}
	cr, err := json.Marshal(result)
	if err == nil {
		cacheDuration := defaultCacheDuration
		if cacheOptions.TTL > 0 {
			cacheDuration = cacheOptions.TTL
		}
		if err := c.Set(ctx, string(jsonCacheKey), cr, cacheDuration); err != nil {
			log.WithError(err).Warningf("couldn't persist new item to cache")
		} else {
			log.Debugf("cache set for cache key: %s", string(jsonCacheKey))
		}
	}
	return result, nil
}

// isStructWithNoPublicFields checks if the given interface is a struct with no public fields.
func isStructWithNoPublicFields(v interface{}) bool {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < val.NumField(); i++ {
		if val.Type().Field(i).IsExported() {
			return false
		}
	}
	return true
}

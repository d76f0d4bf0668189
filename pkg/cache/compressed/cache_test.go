package compressed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type PseudoCache struct {
	cache map[string][]byte
}

func (c *PseudoCache) Get(_ context.Context, key string) ([]byte, error) {
	return c.cache[key], nil
}

func (c *PseudoCache) Set(_ context.Context, key string, content []byte, _ time.Duration) error {
	c.cache[key] = content
	return nil
}

func (c *PseudoCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.cache, k)
	}
	return nil
}

const widgetContent = `{"result":[{"id":1,"name":"smoke","number":3,"values":{"statistics$executions$total":"120","statistics$executions$failed":"4"}}]}`

func TestPseudoCache(t *testing.T) {
	backing := &PseudoCache{cache: make(map[string][]byte)}
	cache, err := NewCompressedCache(backing)
	require.NoError(t, err)

	require.NoError(t, cache.Set(context.TODO(), "widget:7", []byte(widgetContent), time.Hour))
	assert.Contains(t, backing.cache, cachePrefix+"widget:7")

	cacheData, err := cache.Get(context.TODO(), "widget:7")
	require.NoError(t, err)
	assert.Equal(t, widgetContent, string(cacheData))

	require.NoError(t, cache.Delete(context.TODO(), "widget:7"))
	assert.Empty(t, backing.cache)

	_, err = cache.Get(context.TODO(), "widget:7")
	assert.Error(t, err)
}

func TestEmptyContentIsNotStored(t *testing.T) {
	backing := &PseudoCache{cache: make(map[string][]byte)}
	cache, err := NewCompressedCache(backing)
	require.NoError(t, err)

	require.NoError(t, cache.Set(context.TODO(), "empty", nil, time.Hour))
	assert.Empty(t, backing.cache)
}

func TestCompression(t *testing.T) {
	compressed, checksum, err := compress([]byte(widgetContent))
	require.NoError(t, err)
	require.NotNil(t, compressed)

	uncompressed, err := uncompress(compressed, checksum)
	require.NoError(t, err)
	assert.Equal(t, widgetContent, string(uncompressed))

	checksum[0] ^= 0xff
	_, err = uncompress(compressed, checksum)
	assert.Error(t, err)
}

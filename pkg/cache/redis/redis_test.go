package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	srv := miniredis.RunT(t)

	c, err := NewRedisCache("redis://" + srv.Addr())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "widget:1", []byte(`{"result":[]}`), time.Minute))
	assert.True(t, srv.Exists(prefix+"widget:1"))

	data, err := c.Get(ctx, "widget:1")
	require.NoError(t, err)
	assert.Equal(t, `{"result":[]}`, string(data))

	srv.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "widget:1")
	assert.Error(t, err)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a", "b"))
	assert.False(t, srv.Exists(prefix+"a"))
	assert.False(t, srv.Exists(prefix+"b"))
	assert.NoError(t, c.Delete(ctx))
}

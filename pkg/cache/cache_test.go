package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok, err := c.Get(ctx, "0001")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`{"meta":{"extraction_score":80}}`)
	require.NoError(t, c.Set(ctx, "0001", value))
	value[0] = 'x'

	got, ok, err := c.Get(ctx, "0001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"meta":{"extraction_score":80}}`, string(got))
	assert.Equal(t, 1, c.Len())

	got[0] = 'y'
	again, _, _ := c.Get(ctx, "0001")
	assert.Equal(t, byte('{'), again[0])
}

func TestNewRedisCache(t *testing.T) {
	_, err := NewRedisCache(&RedisConfig{})
	assert.Error(t, err)

	c, err := NewRedisCache(&RedisConfig{Addr: "localhost:6379"})
	require.NoError(t, err)
	assert.Equal(t, "quickread:", c.prefix)
	assert.NoError(t, c.Close())
}

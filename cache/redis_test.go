package cache_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendafix/storeapi/cache"
)

func setupTestRedis(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return cache.NewRedis(client, "storeapi"), mr
}

func TestRedis_SetAndGet(t *testing.T) {
	c, _ := setupTestRedis(t)

	c.Set("customers/1/", []byte(`{"id":1}`), time.Minute)
	val, found := c.Get("customers/1/")
	require.True(t, found)
	assert.Equal(t, `{"id":1}`, string(val))

	c.Delete("customers/1/")
	_, found = c.Get("customers/1/")
	assert.False(t, found)
}

func TestRedis_Expiration(t *testing.T) {
	c, mr := setupTestRedis(t)

	c.Set("key", []byte("value"), 60*time.Second)
	mr.FastForward(61 * time.Second)

	_, found := c.Get("key")
	assert.False(t, found)
}

func TestRedis_ClearOnlyTouchesPrefix(t *testing.T) {
	c, mr := setupTestRedis(t)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.Equal(t, 2, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())

	val, err := mr.Get("unrelated")
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed CacheRepository for deployments where several
// terminals share one cache. Keys are namespaced under a prefix; TTL is
// native Redis expiry. Capacity bounding is left to the server's
// maxmemory policy rather than enforced client-side.
type Redis struct {
	client *redis.Client
	prefix string
	ctx    context.Context
}

// NewRedis creates a Redis-backed cache. All keys are stored under
// "<prefix>:".
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ctx:    context.Background(),
	}
}

func (r *Redis) namespaced(key string) string {
	return r.prefix + ":" + key
}

// Get retrieves a value if present and unexpired.
func (r *Redis) Get(key string) ([]byte, bool) {
	val, err := r.client.Get(r.ctx, r.namespaced(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores value under key with the given expiration.
func (r *Redis) Set(key string, value []byte, expiration time.Duration) {
	r.client.Set(r.ctx, r.namespaced(key), value, expiration)
}

// Delete removes key.
func (r *Redis) Delete(key string) {
	r.client.Del(r.ctx, r.namespaced(key))
}

// Clear removes every key under the prefix via SCAN, so a mutation's
// whole-cache invalidation only touches this namespace.
func (r *Redis) Clear() {
	iter := r.client.Scan(r.ctx, 0, r.prefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(r.ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		r.client.Del(r.ctx, keys...)
	}
}

// Len counts the keys under the prefix.
func (r *Redis) Len() int {
	iter := r.client.Scan(r.ctx, 0, r.prefix+":*", 0).Iterator()
	n := 0
	for iter.Next(r.ctx) {
		n++
	}
	return n
}

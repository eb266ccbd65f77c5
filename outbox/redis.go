package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the queue as a Redis list, for deployments where
// several terminals share one outbox. Insertion order maps directly to
// list order.
type RedisStore struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

// NewRedisStore creates a RedisStore persisting under key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		ctx:    context.Background(),
	}
}

// Load returns every persisted item, oldest first.
func (s *RedisStore) Load() ([]Item, error) {
	raw, err := s.client.LRange(s.ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue list: %w", err)
	}
	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		var it Item
		if err := json.Unmarshal([]byte(entry), &it); err != nil {
			return nil, fmt.Errorf("corrupt queue entry: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// Append adds item at the tail.
func (s *RedisStore) Append(item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return s.client.RPush(s.ctx, s.key, data).Err()
}

// Remove deletes the items with the given IDs by rewriting the list.
// The rewrite is pipelined but not transactional against concurrent
// appends from other processes; single-flusher deployments are assumed.
func (s *RedisStore) Remove(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	items, err := s.Load()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	pipe := s.client.TxPipeline()
	pipe.Del(s.ctx, s.key)
	for _, it := range items {
		if drop[it.ID] {
			continue
		}
		data, err := json.Marshal(it)
		if err != nil {
			return err
		}
		pipe.RPush(s.ctx, s.key, data)
	}
	_, err = pipe.Exec(s.ctx)
	return err
}

package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendafix/storeapi/cache"
)

func TestMemory_SetAndGet(t *testing.T) {
	m := cache.NewMemory(4)

	m.Set("foo", []byte(`{"a":1}`), time.Minute)
	val, found := m.Get("foo")
	require.True(t, found)
	assert.Equal(t, `{"a":1}`, string(val))

	m.Delete("foo")
	_, found = m.Get("foo")
	assert.False(t, found)
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := cache.NewMemory(4)
	current := time.Now()
	m.SetNowForTest(func() time.Time { return current })

	m.Set("foo", []byte("bar"), 60*time.Second)

	current = current.Add(59 * time.Second)
	_, found := m.Get("foo")
	assert.True(t, found, "entry should still be fresh at 59s")

	current = current.Add(2 * time.Second)
	_, found = m.Get("foo")
	assert.False(t, found, "entry should be stale past 60s")
	assert.Equal(t, 0, m.Len(), "expired entry should be dropped on access")
}

func TestMemory_EvictsOldestInserted(t *testing.T) {
	m := cache.NewMemory(2)

	m.Set("first", []byte("1"), time.Minute)
	m.Set("second", []byte("2"), time.Minute)

	// reading the oldest must not protect it: eviction is by insertion
	// order, not access order
	_, found := m.Get("first")
	require.True(t, found)

	m.Set("third", []byte("3"), time.Minute)

	_, found = m.Get("first")
	assert.False(t, found, "oldest-inserted entry should have been evicted")
	_, found = m.Get("second")
	assert.True(t, found)
	_, found = m.Get("third")
	assert.True(t, found)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_OverwriteKeepsInsertionPosition(t *testing.T) {
	m := cache.NewMemory(2)

	m.Set("first", []byte("1"), time.Minute)
	m.Set("second", []byte("2"), time.Minute)
	m.Set("first", []byte("1b"), time.Minute)

	m.Set("third", []byte("3"), time.Minute)

	// "first" kept its original position, so it is still the oldest
	_, found := m.Get("first")
	assert.False(t, found)
	_, found = m.Get("second")
	assert.True(t, found)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := cache.NewMemory(4)

	original := []byte("hello")
	m.Set("key", original, time.Minute)

	// mutating what the caller passed in must not reach the cache
	original[0] = 'X'
	val, found := m.Get("key")
	require.True(t, found)
	assert.Equal(t, "hello", string(val))

	// mutating what one reader got must not affect the next reader
	val[0] = 'Y'
	val2, found := m.Get("key")
	require.True(t, found)
	assert.Equal(t, "hello", string(val2))
}

func TestMemory_Clear(t *testing.T) {
	m := cache.NewMemory(4)
	m.Set("a", []byte("1"), time.Minute)
	m.Set("b", []byte("2"), time.Minute)
	require.Equal(t, 2, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
	_, found := m.Get("a")
	assert.False(t, found)

	// the cache stays usable after a clear
	m.Set("c", []byte("3"), time.Minute)
	assert.Equal(t, 1, m.Len())
}

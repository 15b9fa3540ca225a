package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGet(t *testing.T) {
	c := New[int64](time.Minute, 10)
	c.Set("event:1", 100)

	v, ok := c.Get("event:1")
	assert.True(t, ok)
	assert.Equal(t, int64(100), v)

	_, ok = c.Get("event:2")
	assert.False(t, ok)
}

func TestCache_EntriesExpire(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	c := New[string](time.Minute, 10)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is dropped on read")
}

func TestCache_BoundIsHard(t *testing.T) {
	c := New[int](time.Minute, 3)
	for i := 0; i < 10; i++ {
		c.Set(string(rune('a'+i)), i)
	}
	assert.LessOrEqual(t, c.Len(), 3)
}

func TestCache_FullCachePurgesExpiredFirst(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	c := New[int](time.Minute, 2)
	c.now = func() time.Time { return now }

	c.Set("old", 1)
	now = now.Add(2 * time.Minute)
	c.Set("a", 2)
	c.Set("b", 3)

	_, ok := c.Get("old")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCache_Delete(t *testing.T) {
	c := New[int](time.Minute, 10)
	c.Set("k", 1)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
	c.Delete("k") // absent delete is a no-op
}

func TestCache_ZeroMaxEntriesDefaults(t *testing.T) {
	c := New[int](time.Minute, 0)
	c.Set("k", 1)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

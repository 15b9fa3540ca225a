package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ZSetOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ZAdd(ctx, "q", 30, "c"))
	require.NoError(t, m.ZAdd(ctx, "q", 10, "a"))
	require.NoError(t, m.ZAdd(ctx, "q", 20, "b"))

	rank, ok, err := m.ZRank(ctx, "q", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), rank)

	rank, ok, err = m.ZRank(ctx, "q", "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), rank)

	popped, err := m.ZPopMin(ctx, "q", 2)
	require.NoError(t, err)
	require.Len(t, popped, 2)
	assert.Equal(t, "a", popped[0].Member)
	assert.Equal(t, "b", popped[1].Member)

	n, err := m.ZCard(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_ZSetTieBreaksLexically(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ZAdd(ctx, "q", 5, "zed"))
	require.NoError(t, m.ZAdd(ctx, "q", 5, "amy"))

	popped, err := m.ZPopMin(ctx, "q", 1)
	require.NoError(t, err)
	require.Len(t, popped, 1)
	assert.Equal(t, "amy", popped[0].Member)
}

func TestMemory_ZAddNXKeepsOriginalScore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	added, err := m.ZAddNX(ctx, "q", 100, "u1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = m.ZAddNX(ctx, "q", 999, "u1")
	require.NoError(t, err)
	assert.False(t, added)

	score, ok, err := m.ZScore(ctx, "q", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(100), score)
}

func TestMemory_ZRangeByScore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ZAdd(ctx, "hb", 100, "old"))
	require.NoError(t, m.ZAdd(ctx, "hb", 200, "mid"))
	require.NoError(t, m.ZAdd(ctx, "hb", 300, "new"))

	members, err := m.ZRangeByScore(ctx, "hb", ScoreMin, 200, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "mid"}, members)

	members, err = m.ZRangeByScore(ctx, "hb", ScoreMin, ScoreMax, 2)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestMemory_SetNXAndCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.SetNX(ctx, "lock", "tok-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "lock", "tok-2", 0)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX must lose")

	deleted, err := m.CompareAndDelete(ctx, "lock", "tok-2")
	require.NoError(t, err)
	assert.False(t, deleted, "wrong token must not delete")

	deleted, err = m.CompareAndDelete(ctx, "lock", "tok-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, exists, err := m.Get(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, exists, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	// Expired keys free the name for SetNX.
	ok, err := m.SetNX(ctx, "k", "v2", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_ScanMatchesGlob(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ZAdd(ctx, "queue:1", 1, "u"))
	require.NoError(t, m.ZAdd(ctx, "queue:hb:1", 1, "u"))
	require.NoError(t, m.ZAdd(ctx, "active:1", 1, "u"))
	require.NoError(t, m.Set(ctx, "session:u", "{}", 0))

	keys, cursor, err := m.Scan(ctx, 0, "queue:*", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)
	assert.Equal(t, []string{"queue:1", "queue:hb:1"}, keys)
}

func TestMemory_PubSubDelivers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sub, err := m.Subscribe(ctx, "fanout")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Publish(ctx, "fanout", []byte("hello")))

	select {
	case payload := <-sub.Messages():
		assert.Equal(t, "hello", string(payload))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestMemory_ClosedSubscriptionStopsReceiving(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sub, err := m.Subscribe(ctx, "fanout")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "double close is safe")

	require.NoError(t, m.Publish(ctx, "fanout", []byte("late")))

	_, open := <-sub.Messages()
	assert.False(t, open)
}

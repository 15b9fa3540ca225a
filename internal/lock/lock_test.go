package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/store"
)

func TestLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := New(kv, time.Minute)

	lk, err := l.Acquire(ctx, "resource:seat:1:10")
	require.NoError(t, err)
	require.NotNil(t, lk)

	_, err = l.Acquire(ctx, "resource:seat:1:10")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrContention)

	require.NoError(t, l.Release(ctx, lk))

	lk2, err := l.Acquire(ctx, "resource:seat:1:10")
	require.NoError(t, err)
	require.NotNil(t, lk2)
}

func TestLocker_ReleaseIgnoresForeignHolder(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := New(kv, time.Minute)

	first, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	// Simulate TTL lapse and re-acquisition by someone else.
	require.NoError(t, kv.Del(ctx, "k"))
	second, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	// The stale holder's release must not free the new lock.
	require.NoError(t, l.Release(ctx, first))
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, model.ErrContention)

	require.NoError(t, l.Release(ctx, second))
}

func TestLocker_ReleaseNilIsNoop(t *testing.T) {
	l := New(store.NewMemory(), time.Minute)
	assert.NoError(t, l.Release(context.Background(), nil))
}

func TestLocker_AcquireAllAllOrNothing(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	l := New(kv, time.Minute)

	// Pre-hold one of the keys so the batch must fail.
	blocker, err := l.Acquire(ctx, "b")
	require.NoError(t, err)

	locks, err := l.AcquireAll(ctx, []string{"c", "a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrContention)
	assert.Nil(t, locks)

	// The partial acquisitions were rolled back.
	for _, key := range []string{"a", "c"} {
		lk, err := l.Acquire(ctx, key)
		require.NoError(t, err, "key %s should be free after rollback", key)
		require.NoError(t, l.Release(ctx, lk))
	}

	require.NoError(t, l.Release(ctx, blocker))

	locks, err = l.AcquireAll(ctx, []string{"c", "a", "b"})
	require.NoError(t, err)
	require.Len(t, locks, 3)
	// Sorted acquisition order regardless of input order.
	assert.Equal(t, "a", locks[0].Key)
	assert.Equal(t, "b", locks[1].Key)
	assert.Equal(t, "c", locks[2].Key)

	l.ReleaseAll(ctx, locks)
	lk, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, lk))
}

func TestLocker_TokensAreUnique(t *testing.T) {
	a, err := randomToken(16)
	require.NoError(t, err)
	b, err := randomToken(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}

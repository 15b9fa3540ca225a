package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/store"
)

func TestSessionStore_GetMissingReturnsNil(t *testing.T) {
	s := NewSessionStore(store.NewMemory(), time.Hour)
	sess, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionStore_AddRoomCreatesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(store.NewMemory(), time.Hour)

	require.NoError(t, s.AddRoom(ctx, "u1", QueueRoom(5)))
	require.NoError(t, s.AddRoom(ctx, "u1", SeatsRoom(5)))
	require.NoError(t, s.AddRoom(ctx, "u1", QueueRoom(5)))

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, []string{QueueRoom(5), SeatsRoom(5)}, sess.Rooms)
	assert.False(t, sess.UpdatedAt.IsZero())
}

func TestSessionStore_RemoveRoom(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(store.NewMemory(), time.Hour)

	require.NoError(t, s.AddRoom(ctx, "u1", QueueRoom(5)))
	require.NoError(t, s.AddRoom(ctx, "u1", SeatsRoom(5)))
	require.NoError(t, s.RemoveRoom(ctx, "u1", QueueRoom(5)))

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, []string{SeatsRoom(5)}, sess.Rooms)

	// Removing from an absent session is a no-op.
	require.NoError(t, s.RemoveRoom(ctx, "nobody", QueueRoom(5)))
}

func TestSessionStore_SetSelection(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(store.NewMemory(), time.Hour)

	require.NoError(t, s.SetSelection(ctx, "u1", []uint64{10, 11}))
	require.NoError(t, s.AddRoom(ctx, "u1", SeatsRoom(5)))

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, []uint64{10, 11}, sess.SelectedSeats)
	assert.Equal(t, []string{SeatsRoom(5)}, sess.Rooms)
}

func TestSessionStore_TTLExpires(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(store.NewMemory(), time.Millisecond)

	require.NoError(t, s.AddRoom(ctx, "u1", QueueRoom(5)))
	time.Sleep(5 * time.Millisecond)

	sess, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

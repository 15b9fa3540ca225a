package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.Memory, context.CancelFunc) {
	t.Helper()
	mem := store.NewMemory()
	hub := NewHub(mem, NewSessionStore(mem, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	// Give the subscriber a moment to attach.
	time.Sleep(10 * time.Millisecond)
	return hub, mem, cancel
}

// receive drains one frame from the client's send queue.
func receive(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case raw := <-c.send:
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return ServerMessage{}
	}
}

func TestHub_BroadcastReachesRoomMembers(t *testing.T) {
	hub, _, cancel := newTestHub(t)
	defer cancel()
	ctx := context.Background()

	member := NewClient(nil, "u1")
	outsider := NewClient(nil, "u2")
	require.NoError(t, hub.Join(ctx, member, SeatsRoom(5)))
	require.NoError(t, hub.Join(ctx, outsider, SeatsRoom(6)))

	require.NoError(t, hub.Broadcast(ctx, SeatsRoom(5), EventSeatLocked, map[string]any{"seat_ids": []uint64{10}}))

	msg := receive(t, member)
	assert.Equal(t, EventSeatLocked, msg.Event)
	assert.Equal(t, SeatsRoom(5), msg.Room)

	select {
	case <-outsider.send:
		t.Fatal("outsider must not receive another room's broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_JoinRecordsSessionForReconnect(t *testing.T) {
	hub, _, cancel := newTestHub(t)
	defer cancel()
	ctx := context.Background()

	c := NewClient(nil, "u1")
	require.NoError(t, hub.Join(ctx, c, QueueRoom(5)))

	sess, err := hub.Sessions().Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, []string{QueueRoom(5)}, sess.Rooms)

	// Detach keeps the session; the next connection restores from it.
	hub.Detach(c)
	assert.Zero(t, hub.RoomSize(QueueRoom(5)))
	sess, err = hub.Sessions().Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, []string{QueueRoom(5)}, sess.Rooms)
}

func TestHub_LeaveRemovesSessionRoom(t *testing.T) {
	hub, _, cancel := newTestHub(t)
	defer cancel()
	ctx := context.Background()

	c := NewClient(nil, "u1")
	require.NoError(t, hub.Join(ctx, c, QueueRoom(5)))
	require.NoError(t, hub.Leave(ctx, c, QueueRoom(5)))

	assert.Zero(t, hub.RoomSize(QueueRoom(5)))
	sess, err := hub.Sessions().Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Empty(t, sess.Rooms)

	// A broadcast after leaving must not reach the client.
	require.NoError(t, hub.Broadcast(ctx, QueueRoom(5), EventQueueUpdated, nil))
	select {
	case <-c.send:
		t.Fatal("client received broadcast after leaving")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastCrossesInstances(t *testing.T) {
	// Two hubs share one backplane, as two server instances share Redis.
	mem := store.NewMemory()
	hubA := NewHub(mem, NewSessionStore(mem, time.Hour))
	hubB := NewHub(mem, NewSessionStore(mem, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hubA.Run(ctx) }()
	go func() { _ = hubB.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	c := NewClient(nil, "u1")
	require.NoError(t, hubB.Join(ctx, c, SeatsRoom(5)))

	// Publish from instance A; the client hangs off instance B.
	require.NoError(t, hubA.Broadcast(ctx, SeatsRoom(5), EventSeatReleased, map[string]any{"seat_ids": []uint64{10}}))

	msg := receive(t, c)
	assert.Equal(t, EventSeatReleased, msg.Event)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "event:5", EventRoom(5))
	assert.Equal(t, "queue:5", QueueRoom(5))
	assert.Equal(t, "seats:5", SeatsRoom(5))
}

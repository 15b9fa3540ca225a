package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/lock"
	"github.com/ticketgate/onsale/internal/realtime"
	"github.com/ticketgate/onsale/internal/store"
)

// fakeBroadcaster records every broadcast for assertions.
type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	Room  string
	Event string
	Data  any
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, room, event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{Room: room, Event: event, Data: data})
	return nil
}

func (f *fakeBroadcaster) byEvent(event string) []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcastCall
	for _, call := range f.calls {
		if call.Event == event {
			out = append(out, call)
		}
	}
	return out
}

func newTestProcessor(kv store.KV, fanout Broadcaster) (*Processor, *Queue, *clock) {
	clk := newClock()
	q := NewQueue(kv, testQueueConfig(), nil)
	q.now = clk.now
	p := NewProcessor(kv, q, lock.New(kv, time.Minute), fanout, testQueueConfig())
	p.now = clk.now
	return p, q, clk
}

func TestProcessor_PromotesFIFOWhenSlotsFree(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	fanout := &fakeBroadcaster{}
	p, q, clk := newTestProcessor(kv, fanout)

	// Fill both active slots, then line up three more users.
	for i := 1; i <= 2; i++ {
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("active-%d", i))
		require.NoError(t, err)
	}
	for i := 1; i <= 3; i++ {
		clk.advance(time.Millisecond)
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("w%d", i))
		require.NoError(t, err)
	}

	// Nothing to promote while the active set is full.
	require.NoError(t, p.Tick(ctx))
	waiting, err := q.WaitingCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), waiting)

	// Two actives leave; the next tick fills both slots in FIFO order.
	require.NoError(t, q.Leave(ctx, 1, "active-1"))
	require.NoError(t, q.Leave(ctx, 1, "active-2"))
	require.NoError(t, p.Tick(ctx))

	for _, user := range []string{"w1", "w2"} {
		active, err := q.IsActive(ctx, 1, user)
		require.NoError(t, err)
		assert.True(t, active, "%s should be promoted", user)
	}
	active, err := q.IsActive(ctx, 1, "w3")
	require.NoError(t, err)
	assert.False(t, active, "w3 must wait for the next free slot")

	allowed := fanout.byEvent(realtime.EventQueueEntryAllowed)
	require.Len(t, allowed, 2)
	assert.Equal(t, realtime.QueueRoom(1), allowed[0].Room)

	updated := fanout.byEvent(realtime.EventQueueUpdated)
	require.NotEmpty(t, updated)
}

func TestProcessor_EvictsStaleQueueHeartbeats(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	p, q, clk := newTestProcessor(kv, &fakeBroadcaster{})

	for i := 1; i <= 2; i++ {
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("active-%d", i))
		require.NoError(t, err)
	}
	clk.advance(time.Millisecond)
	_, _, err := q.CheckEntry(ctx, 1, "ghost")
	require.NoError(t, err)
	clk.advance(time.Millisecond)
	_, _, err = q.CheckEntry(ctx, 1, "alive")
	require.NoError(t, err)

	// ghost stops heartbeating; alive keeps its liveness fresh.
	clk.advance(2 * time.Minute)
	require.NoError(t, q.Heartbeat(ctx, 1, "alive"))
	// The actives also heartbeat so they are not evicted.
	require.NoError(t, q.Heartbeat(ctx, 1, "active-1"))
	require.NoError(t, q.Heartbeat(ctx, 1, "active-2"))

	require.NoError(t, p.Tick(ctx))

	waiting, err := q.WaitingCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)

	st, err := q.Status(ctx, 1, "alive")
	require.NoError(t, err)
	assert.True(t, st.Queued)
	assert.Equal(t, int64(1), st.Position, "eviction moves survivors up")
}

func TestProcessor_EvictsActivesPastTTL(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	p, q, clk := newTestProcessor(kv, &fakeBroadcaster{})

	_, _, err := q.CheckEntry(ctx, 1, "camper")
	require.NoError(t, err)

	// The camper heartbeats diligently but sits on the slot past the
	// active TTL.
	for i := 0; i < 11; i++ {
		clk.advance(time.Minute)
		require.NoError(t, q.Heartbeat(ctx, 1, "camper"))
	}

	require.NoError(t, p.Tick(ctx))

	active, err := q.IsActive(ctx, 1, "camper")
	require.NoError(t, err)
	assert.False(t, active, "active TTL bounds slot tenure regardless of heartbeats")
}

func TestProcessor_SkipsEventWhenAnotherInstanceHoldsLock(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	p, q, clk := newTestProcessor(kv, &fakeBroadcaster{})

	for i := 1; i <= 2; i++ {
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("active-%d", i))
		require.NoError(t, err)
	}
	clk.advance(time.Millisecond)
	_, _, err := q.CheckEntry(ctx, 1, "w1")
	require.NoError(t, err)
	require.NoError(t, q.Leave(ctx, 1, "active-1"))

	// Another instance is mid-tick on this event.
	other := lock.New(kv, time.Minute)
	held, err := other.Acquire(ctx, "qproc:1")
	require.NoError(t, err)

	require.NoError(t, p.Tick(ctx), "losing the per-event lock is not an error")
	active, err := q.IsActive(ctx, 1, "w1")
	require.NoError(t, err)
	assert.False(t, active, "no promotion while the lock is held elsewhere")

	require.NoError(t, other.Release(ctx, held))
	require.NoError(t, p.Tick(ctx))
	active, err = q.IsActive(ctx, 1, "w1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessor_DiscoverSkipsHeartbeatKeys(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	p, _, _ := newTestProcessor(kv, nil)

	require.NoError(t, kv.ZAdd(ctx, "queue:5", 1, "u"))
	require.NoError(t, kv.ZAdd(ctx, "queue:hb:5", 1, "u"))
	require.NoError(t, kv.ZAdd(ctx, "active:9", 1, "u"))
	require.NoError(t, kv.ZAdd(ctx, "active:hb:9", 1, "u"))

	events, err := p.discover(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{5, 9}, events)
}

func TestProcessor_TickWithNoActivityIsClean(t *testing.T) {
	p, _, _ := newTestProcessor(store.NewMemory(), nil)
	assert.NoError(t, p.Tick(context.Background()))
}

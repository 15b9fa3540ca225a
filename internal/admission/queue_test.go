package admission

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/config"
	"github.com/ticketgate/onsale/internal/store"
)

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		DefaultThreshold: 2,
		AdmissionRate:    5,
		IdleTimeout:      90 * time.Second,
		ActiveTTL:        10 * time.Minute,
	}
}

// clock is a controllable time source for queue and processor tests.
type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestQueue_DirectAdmissionUnderThreshold(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(store.NewMemory(), testQueueConfig(), nil)

	st, joined, err := q.CheckEntry(ctx, 1, "u1")
	require.NoError(t, err)
	assert.True(t, joined)
	assert.False(t, st.Queued)
	assert.Equal(t, int64(1), st.CurrentUsers)
	assert.Equal(t, int64(2), st.Threshold)

	active, err := q.IsActive(ctx, 1, "u1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestQueue_EnqueuesBeyondThresholdInFIFOOrder(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	q := NewQueue(store.NewMemory(), testQueueConfig(), nil)
	q.now = clk.now

	for i := 1; i <= 2; i++ {
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("active-%d", i))
		require.NoError(t, err)
		clk.advance(time.Millisecond)
	}

	st, joined, err := q.CheckEntry(ctx, 1, "w1")
	require.NoError(t, err)
	assert.True(t, joined)
	assert.True(t, st.Queued)
	assert.Equal(t, int64(1), st.Position)
	assert.Equal(t, int64(1), st.EstimatedWaitSec)

	clk.advance(time.Millisecond)
	st, _, err = q.CheckEntry(ctx, 1, "w2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Position)

	active, err := q.IsActive(ctx, 1, "w1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQueue_CheckEntryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	q := NewQueue(store.NewMemory(), testQueueConfig(), nil)
	q.now = clk.now

	for i := 1; i <= 2; i++ {
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("active-%d", i))
		require.NoError(t, err)
	}
	clk.advance(time.Millisecond)
	_, _, err := q.CheckEntry(ctx, 1, "w1")
	require.NoError(t, err)
	clk.advance(time.Millisecond)
	_, _, err = q.CheckEntry(ctx, 1, "w2")
	require.NoError(t, err)

	// Re-checking much later must not move w1 behind w2.
	clk.advance(time.Hour)
	st, joined, err := q.CheckEntry(ctx, 1, "w1")
	require.NoError(t, err)
	assert.False(t, joined, "re-check must not count as a join")
	assert.Equal(t, int64(1), st.Position)

	waiting, err := q.WaitingCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), waiting)
}

func TestQueue_StatusIsReadOnly(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(store.NewMemory(), testQueueConfig(), nil)

	st, err := q.Status(ctx, 1, "stranger")
	require.NoError(t, err)
	assert.False(t, st.Queued)
	assert.Zero(t, st.Position)

	// The status call must not have enrolled the user anywhere.
	waiting, err := q.WaitingCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, waiting)
	active, err := q.IsActive(ctx, 1, "stranger")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQueue_LeaveFreesSlotAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(store.NewMemory(), testQueueConfig(), nil)

	_, _, err := q.CheckEntry(ctx, 1, "u1")
	require.NoError(t, err)

	require.NoError(t, q.Leave(ctx, 1, "u1"))
	require.NoError(t, q.Leave(ctx, 1, "u1"), "second leave is a no-op")

	active, err := q.IsActive(ctx, 1, "u1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQueue_HeartbeatDoesNotReorder(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	kv := store.NewMemory()
	q := NewQueue(kv, testQueueConfig(), nil)
	q.now = clk.now

	for i := 1; i <= 2; i++ {
		_, _, err := q.CheckEntry(ctx, 1, fmt.Sprintf("active-%d", i))
		require.NoError(t, err)
	}
	clk.advance(time.Millisecond)
	_, _, err := q.CheckEntry(ctx, 1, "w1")
	require.NoError(t, err)
	clk.advance(time.Millisecond)
	_, _, err = q.CheckEntry(ctx, 1, "w2")
	require.NoError(t, err)

	clk.advance(time.Minute)
	require.NoError(t, q.Heartbeat(ctx, 1, "w1"))

	st, err := q.Status(ctx, 1, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Position, "heartbeat must not change FIFO order")

	// Heartbeat for an unknown user is a no-op, not an error.
	require.NoError(t, q.Heartbeat(ctx, 1, "stranger"))
}

func TestQueue_ThresholdErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("events table down")
	q := NewQueue(store.NewMemory(), testQueueConfig(), func(context.Context, uint64) (int64, error) {
		return 0, boom
	})

	_, _, err := q.CheckEntry(ctx, 1, "u1")
	assert.ErrorIs(t, err, boom)
	_, err = q.Status(ctx, 1, "u1")
	assert.ErrorIs(t, err, boom)
}

func TestEventIDFromKey(t *testing.T) {
	cases := []struct {
		key string
		id  uint64
		ok  bool
	}{
		{"queue:42", 42, true},
		{"active:7", 7, true},
		{"queue:hb:42", 0, false},
		{"active:hb:7", 0, false},
		{"queue:not-a-number", 0, false},
		{"session:u1", 0, false},
	}
	for _, tc := range cases {
		id, ok := eventIDFromKey(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.id, id, tc.key)
	}
}

func TestEstimatedWait(t *testing.T) {
	assert.Equal(t, int64(1), estimatedWait(1, 5))
	assert.Equal(t, int64(1), estimatedWait(5, 5))
	assert.Equal(t, int64(2), estimatedWait(6, 5))
	assert.Equal(t, int64(3), estimatedWait(3, 0), "zero rate falls back to 1/s")
}

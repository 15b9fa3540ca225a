package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/broker"
	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/realtime"
)

type fakeReclaimer struct {
	holds []ReclaimedHold
	err   error
	calls int
}

func (f *fakeReclaimer) ReclaimExpired(context.Context) ([]ReclaimedHold, error) {
	f.calls++
	return f.holds, f.err
}

type fakeGate struct {
	active bool
	left   []string
}

func (f *fakeGate) IsActive(context.Context, uint64, string) (bool, error) { return f.active, nil }
func (f *fakeGate) Leave(_ context.Context, eventID uint64, userID string) error {
	f.left = append(f.left, userID)
	return nil
}

type fakeFanout struct {
	events []string
	rooms  []string
}

func (f *fakeFanout) Broadcast(_ context.Context, room, event string, _ any) error {
	f.rooms = append(f.rooms, room)
	f.events = append(f.events, event)
	return nil
}

type fakePublisher struct {
	expired   []broker.ReservationEvent
	confirmed []broker.ReservationEvent
}

func (f *fakePublisher) PublishReservationConfirmed(_ context.Context, ev broker.ReservationEvent) error {
	f.confirmed = append(f.confirmed, ev)
	return nil
}

func (f *fakePublisher) PublishReservationExpired(_ context.Context, ev broker.ReservationEvent) error {
	f.expired = append(f.expired, ev)
	return nil
}

func expiredHold(resID uint64, userID string, eventID uint64, seatID uint64) ReclaimedHold {
	sid := seatID
	return ReclaimedHold{
		Reservation: model.Reservation{
			ID:      resID,
			UserID:  userID,
			EventID: eventID,
			Status:  model.ReservationStatusExpired,
		},
		Items: []model.ReservationItem{{SeatID: &sid, Quantity: 1}},
	}
}

func TestReaper_TickFinishesEachReclaimedHold(t *testing.T) {
	reclaimer := &fakeReclaimer{holds: []ReclaimedHold{
		expiredHold(1, "u1", 5, 10),
		expiredHold(2, "u2", 5, 11),
	}}
	gate := &fakeGate{}
	fanout := &fakeFanout{}
	producer := &fakePublisher{}
	rp := NewReaper(reclaimer, gate, fanout, producer)

	require.NoError(t, rp.Tick(context.Background()))

	assert.Equal(t, []string{"u1", "u2"}, gate.left, "admission slots released")
	assert.Len(t, producer.expired, 2)
	assert.Empty(t, producer.confirmed)
	assert.Contains(t, fanout.events, realtime.EventSeatReleased)
	assert.Contains(t, fanout.rooms, realtime.SeatsRoom(5))
}

func TestReaper_TickPropagatesReclaimError(t *testing.T) {
	boom := errors.New("db down")
	rp := NewReaper(&fakeReclaimer{err: boom}, &fakeGate{}, &fakeFanout{}, &fakePublisher{})
	assert.ErrorIs(t, rp.Tick(context.Background()), boom)
}

func TestReaper_NothingExpiredIsClean(t *testing.T) {
	reclaimer := &fakeReclaimer{}
	gate := &fakeGate{}
	producer := &fakePublisher{}
	rp := NewReaper(reclaimer, gate, nil, producer)

	require.NoError(t, rp.Tick(context.Background()))
	assert.Equal(t, 1, reclaimer.calls)
	assert.Empty(t, gate.left)
	assert.Empty(t, producer.expired)
}

func TestReaper_NilSideEffectsAreSkipped(t *testing.T) {
	rp := NewReaper(&fakeReclaimer{holds: []ReclaimedHold{expiredHold(1, "u1", 5, 10)}}, nil, nil, nil)
	assert.NoError(t, rp.Tick(context.Background()))
}

// Package admission implements the per-event waiting room: a FIFO
// queue over an ordered set that gates how many users may be actively
// attempting to book at once, plus the background processor that
// promotes queued users as capacity frees up.
//
// Redis keys, all scored in milliseconds since epoch:
//
//	queue:{event}      zset of waiting users, score = enqueue time (immutable)
//	queue:hb:{event}   zset of waiting users, score = last heartbeat
//	active:{event}     zset of admitted users, score = admission time
//	active:hb:{event}  zset of admitted users, score = last heartbeat
//
// Heartbeats live in their own sets so refreshing liveness can never
// reorder the queue.
package admission

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ticketgate/onsale/internal/config"
	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/store"
)

// ThresholdFunc resolves the active-set capacity for an event. The
// production implementation reads the events table through a bounded
// TTL cache.
type ThresholdFunc func(ctx context.Context, eventID uint64) (int64, error)

// Queue is the request-time side of the waiting room. It only ever
// inserts and reads; promotion out of the queue is the processor's job.
type Queue struct {
	kv        store.KV
	cfg       config.QueueConfig
	threshold ThresholdFunc
	now       func() time.Time
}

// NewQueue builds a Queue. threshold may be nil, in which case the
// configured default threshold applies to every event.
func NewQueue(kv store.KV, cfg config.QueueConfig, threshold ThresholdFunc) *Queue {
	if kv == nil {
		panic("nil kv passed to admission.NewQueue")
	}
	q := &Queue{kv: kv, cfg: cfg, threshold: threshold, now: time.Now}
	if q.threshold == nil {
		q.threshold = func(context.Context, uint64) (int64, error) { return cfg.DefaultThreshold, nil }
	}
	return q
}

func queueKey(eventID uint64) string    { return "queue:" + strconv.FormatUint(eventID, 10) }
func queueHBKey(eventID uint64) string  { return "queue:hb:" + strconv.FormatUint(eventID, 10) }
func activeKey(eventID uint64) string   { return "active:" + strconv.FormatUint(eventID, 10) }
func activeHBKey(eventID uint64) string { return "active:hb:" + strconv.FormatUint(eventID, 10) }

// eventIDFromKey parses the event id out of a queue:* or active:* key,
// rejecting the heartbeat variants.
func eventIDFromKey(key string) (uint64, bool) {
	rest, ok := strings.CutPrefix(key, "queue:")
	if !ok {
		rest, ok = strings.CutPrefix(key, "active:")
	}
	if !ok || strings.HasPrefix(rest, "hb:") {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// CheckEntry is the check-in operation. It is idempotent: an already
// active or already queued user gets their current status back with no
// side effect beyond a heartbeat refresh, so a page refresh never
// costs a place in line. The joined result reports whether this call
// actually inserted the user somewhere (used to broadcast queue-size
// changes exactly once).
func (q *Queue) CheckEntry(ctx context.Context, eventID uint64, userID string) (model.QueueStatus, bool, error) {
	nowMS := float64(q.now().UnixMilli())

	threshold, err := q.threshold(ctx, eventID)
	if err != nil {
		return model.QueueStatus{}, false, fmt.Errorf("resolve threshold: %w", err)
	}

	// Already admitted: report active status and refresh liveness.
	if _, active, err := q.kv.ZScore(ctx, activeKey(eventID), userID); err != nil {
		return model.QueueStatus{}, false, err
	} else if active {
		if err := q.kv.ZAdd(ctx, activeHBKey(eventID), nowMS, userID); err != nil {
			return model.QueueStatus{}, false, err
		}
		return q.activeStatus(ctx, eventID, threshold)
	}

	// Already waiting: report position without rewriting the enqueue
	// score (ZScore first, so the later ZAddNX below is only reached by
	// genuinely new users).
	if rank, queued, err := q.kv.ZRank(ctx, queueKey(eventID), userID); err != nil {
		return model.QueueStatus{}, false, err
	} else if queued {
		if err := q.kv.ZAdd(ctx, queueHBKey(eventID), nowMS, userID); err != nil {
			return model.QueueStatus{}, false, err
		}
		return q.queuedStatus(ctx, eventID, rank, threshold, false)
	}

	// New user: admit directly while the active set has room.
	current, err := q.kv.ZCard(ctx, activeKey(eventID))
	if err != nil {
		return model.QueueStatus{}, false, err
	}
	if current < threshold {
		if err := q.kv.ZAdd(ctx, activeKey(eventID), nowMS, userID); err != nil {
			return model.QueueStatus{}, false, err
		}
		if err := q.kv.ZAdd(ctx, activeHBKey(eventID), nowMS, userID); err != nil {
			return model.QueueStatus{}, false, err
		}
		st, _, err := q.activeStatus(ctx, eventID, threshold)
		return st, true, err
	}

	// Otherwise take a place at the back of the line. ZAddNX keeps the
	// original score if a concurrent check-in won the race.
	if _, err := q.kv.ZAddNX(ctx, queueKey(eventID), nowMS, userID); err != nil {
		return model.QueueStatus{}, false, err
	}
	if err := q.kv.ZAdd(ctx, queueHBKey(eventID), nowMS, userID); err != nil {
		return model.QueueStatus{}, false, err
	}
	rank, _, err := q.kv.ZRank(ctx, queueKey(eventID), userID)
	if err != nil {
		return model.QueueStatus{}, false, err
	}
	return q.queuedStatus(ctx, eventID, rank, threshold, true)
}

// Status reports the user's current standing without any insertion.
// Unknown users are reported as neither queued nor active.
func (q *Queue) Status(ctx context.Context, eventID uint64, userID string) (model.QueueStatus, error) {
	threshold, err := q.threshold(ctx, eventID)
	if err != nil {
		return model.QueueStatus{}, fmt.Errorf("resolve threshold: %w", err)
	}
	if _, active, err := q.kv.ZScore(ctx, activeKey(eventID), userID); err != nil {
		return model.QueueStatus{}, err
	} else if active {
		st, _, err := q.activeStatus(ctx, eventID, threshold)
		return st, err
	}
	if rank, queued, err := q.kv.ZRank(ctx, queueKey(eventID), userID); err != nil {
		return model.QueueStatus{}, err
	} else if queued {
		st, _, err := q.queuedStatus(ctx, eventID, rank, threshold, false)
		return st, err
	}
	current, err := q.kv.ZCard(ctx, activeKey(eventID))
	if err != nil {
		return model.QueueStatus{}, err
	}
	return model.QueueStatus{Queued: false, CurrentUsers: current, Threshold: threshold}, nil
}

// Leave removes the user from both the waiting queue and the active
// set. It is used for explicit opt-out and by the reaper when a hold
// expires, and is a no-op for unknown users.
func (q *Queue) Leave(ctx context.Context, eventID uint64, userID string) error {
	for _, key := range []string{queueKey(eventID), queueHBKey(eventID), activeKey(eventID), activeHBKey(eventID)} {
		if err := q.kv.ZRem(ctx, key, userID); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat refreshes the user's liveness score in whichever set they
// belong to. It never touches the FIFO enqueue score.
func (q *Queue) Heartbeat(ctx context.Context, eventID uint64, userID string) error {
	nowMS := float64(q.now().UnixMilli())
	if _, active, err := q.kv.ZScore(ctx, activeKey(eventID), userID); err != nil {
		return err
	} else if active {
		return q.kv.ZAdd(ctx, activeHBKey(eventID), nowMS, userID)
	}
	if _, queued, err := q.kv.ZScore(ctx, queueKey(eventID), userID); err != nil {
		return err
	} else if queued {
		return q.kv.ZAdd(ctx, queueHBKey(eventID), nowMS, userID)
	}
	return nil
}

// IsActive reports whether the user currently holds an active slot for
// the event, i.e. is permitted to attempt booking.
func (q *Queue) IsActive(ctx context.Context, eventID uint64, userID string) (bool, error) {
	_, active, err := q.kv.ZScore(ctx, activeKey(eventID), userID)
	return active, err
}

// WaitingCount returns the number of users in the waiting queue.
func (q *Queue) WaitingCount(ctx context.Context, eventID uint64) (int64, error) {
	return q.kv.ZCard(ctx, queueKey(eventID))
}

func (q *Queue) activeStatus(ctx context.Context, eventID uint64, threshold int64) (model.QueueStatus, bool, error) {
	current, err := q.kv.ZCard(ctx, activeKey(eventID))
	if err != nil {
		return model.QueueStatus{}, false, err
	}
	return model.QueueStatus{Queued: false, CurrentUsers: current, Threshold: threshold}, false, nil
}

func (q *Queue) queuedStatus(ctx context.Context, eventID uint64, rank, threshold int64, joined bool) (model.QueueStatus, bool, error) {
	current, err := q.kv.ZCard(ctx, activeKey(eventID))
	if err != nil {
		return model.QueueStatus{}, false, err
	}
	position := rank + 1
	return model.QueueStatus{
		Queued:           true,
		Position:         position,
		EstimatedWaitSec: estimatedWait(position, q.cfg.AdmissionRate),
		CurrentUsers:     current,
		Threshold:        threshold,
	}, joined, nil
}

// estimatedWait approximates seconds until admission assuming a fixed
// promotion rate: ceil(position / rate).
func estimatedWait(position, rate int64) int64 {
	if rate <= 0 {
		rate = 1
	}
	return (position + rate - 1) / rate
}

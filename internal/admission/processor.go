package admission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ticketgate/onsale/internal/config"
	"github.com/ticketgate/onsale/internal/lock"
	"github.com/ticketgate/onsale/internal/metrics"
	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/realtime"
	"github.com/ticketgate/onsale/internal/store"
)

// Broadcaster is the slice of the realtime hub the processor needs:
// room-scoped fan-out of queue state changes.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, data any) error
}

// Processor is the only writer that promotes users out of the waiting
// queue. Each tick it discovers events with queue or active activity,
// evicts participants whose heartbeat went stale, and fills freed
// active slots strictly in FIFO order. One tick of one event runs on
// one instance at a time, guarded by a short advisory lock, so running
// the processor on every instance cannot double-promote.
type Processor struct {
	kv     store.KV
	queue  *Queue
	locker *lock.Locker
	fanout Broadcaster
	cfg    config.QueueConfig
	now    func() time.Time
	scanSz int64
}

// NewProcessor builds a Processor sharing the Queue's key layout and
// threshold source. fanout may be nil (tests, headless tools).
func NewProcessor(kv store.KV, queue *Queue, locker *lock.Locker, fanout Broadcaster, cfg config.QueueConfig) *Processor {
	if kv == nil || queue == nil || locker == nil {
		panic("nil dependency passed to admission.NewProcessor")
	}
	return &Processor{
		kv:     kv,
		queue:  queue,
		locker: locker,
		fanout: fanout,
		cfg:    cfg,
		now:    time.Now,
		scanSz: 64,
	}
}

// Tick runs one full processing pass. Per-event failures are logged
// and folded into the returned error without stopping the remaining
// events; the caller's circuit breaker decides when repeated failures
// warrant a pause.
func (p *Processor) Tick(ctx context.Context) error {
	events, err := p.discover(ctx)
	if err != nil {
		return fmt.Errorf("discover events: %w", err)
	}

	var tickErr error
	for _, eventID := range events {
		if err := p.processEvent(ctx, eventID); err != nil {
			log.Printf("admission: processing event %d failed: %v", eventID, err)
			tickErr = errors.Join(tickErr, fmt.Errorf("event %d: %w", eventID, err))
		}
	}
	return tickErr
}

// discover walks the queue:* and active:* namespaces with an
// incremental cursor scan. A full key listing would stall Redis once
// the platform runs many simultaneous on-sales.
func (p *Processor) discover(ctx context.Context) ([]uint64, error) {
	seen := make(map[uint64]struct{})
	var events []uint64
	for _, pattern := range []string{"queue:*", "active:*"} {
		var cursor uint64
		for {
			keys, next, err := p.kv.Scan(ctx, cursor, pattern, p.scanSz)
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				id, ok := eventIDFromKey(key)
				if !ok {
					continue
				}
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					events = append(events, id)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return events, nil
}

func (p *Processor) processEvent(ctx context.Context, eventID uint64) error {
	// Only one instance processes a given event per interval. Losing
	// the race is not an error: the winner does the work.
	lk, err := p.locker.Acquire(ctx, fmt.Sprintf("qproc:%d", eventID))
	if err != nil {
		if errors.Is(err, model.ErrContention) {
			return nil
		}
		return err
	}
	defer func() { _ = p.locker.Release(ctx, lk) }()

	evicted, err := p.evictStale(ctx, eventID)
	if err != nil {
		return fmt.Errorf("evict stale: %w", err)
	}

	promoted, waiting, err := p.promote(ctx, eventID)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	if (evicted > 0 || promoted > 0) && p.fanout != nil {
		payload := map[string]any{"event_id": eventID, "waiting": waiting}
		if err := p.fanout.Broadcast(ctx, realtime.QueueRoom(eventID), realtime.EventQueueUpdated, payload); err != nil {
			log.Printf("admission: broadcast queue-updated for event %d failed: %v", eventID, err)
		}
	}
	return nil
}

// evictStale reclaims slots from participants who stopped heart-
// beating (closed their tab without leaving) and from active users
// whose admission outlived the active TTL.
func (p *Processor) evictStale(ctx context.Context, eventID uint64) (int, error) {
	staleBefore := float64(p.now().Add(-p.cfg.IdleTimeout).UnixMilli())
	evicted := 0

	stale, err := p.kv.ZRangeByScore(ctx, queueHBKey(eventID), store.ScoreMin, staleBefore, 0)
	if err != nil {
		return evicted, err
	}
	if len(stale) > 0 {
		if err := p.kv.ZRem(ctx, queueKey(eventID), stale...); err != nil {
			return evicted, err
		}
		if err := p.kv.ZRem(ctx, queueHBKey(eventID), stale...); err != nil {
			return evicted, err
		}
		evicted += len(stale)
	}

	stale, err = p.kv.ZRangeByScore(ctx, activeHBKey(eventID), store.ScoreMin, staleBefore, 0)
	if err != nil {
		return evicted, err
	}
	expiredBefore := float64(p.now().Add(-p.cfg.ActiveTTL).UnixMilli())
	expired, err := p.kv.ZRangeByScore(ctx, activeKey(eventID), store.ScoreMin, expiredBefore, 0)
	if err != nil {
		return evicted, err
	}
	stale = append(stale, expired...)
	if len(stale) > 0 {
		if err := p.kv.ZRem(ctx, activeKey(eventID), stale...); err != nil {
			return evicted, err
		}
		if err := p.kv.ZRem(ctx, activeHBKey(eventID), stale...); err != nil {
			return evicted, err
		}
		evicted += len(stale)
	}

	if evicted > 0 {
		metrics.QueueEvictions.Add(float64(evicted))
	}
	return evicted, nil
}

// promote pops the lowest-score queue members into freed active slots,
// strictly FIFO, and notifies each admitted user. It returns how many
// users were promoted and the waiting count afterwards.
func (p *Processor) promote(ctx context.Context, eventID uint64) (int, int64, error) {
	threshold, err := p.queue.threshold(ctx, eventID)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve threshold: %w", err)
	}
	current, err := p.kv.ZCard(ctx, activeKey(eventID))
	if err != nil {
		return 0, 0, err
	}
	available := threshold - current
	if available <= 0 {
		waiting, err := p.kv.ZCard(ctx, queueKey(eventID))
		return 0, waiting, err
	}

	popped, err := p.kv.ZPopMin(ctx, queueKey(eventID), available)
	if err != nil {
		return 0, 0, err
	}
	nowMS := float64(p.now().UnixMilli())
	for _, member := range popped {
		userID := member.Member
		if err := p.kv.ZRem(ctx, queueHBKey(eventID), userID); err != nil {
			return 0, 0, err
		}
		if err := p.kv.ZAdd(ctx, activeKey(eventID), nowMS, userID); err != nil {
			return 0, 0, err
		}
		if err := p.kv.ZAdd(ctx, activeHBKey(eventID), nowMS, userID); err != nil {
			return 0, 0, err
		}
		metrics.QueuePromotions.Inc()
		if p.fanout != nil {
			promoted := model.PromotedUser{EventID: eventID, UserID: userID}
			if err := p.fanout.Broadcast(ctx, realtime.QueueRoom(eventID), realtime.EventQueueEntryAllowed, promoted); err != nil {
				log.Printf("admission: broadcast queue-entry-allowed for user %s failed: %v", userID, err)
			}
		}
	}

	waiting, err := p.kv.ZCard(ctx, queueKey(eventID))
	return len(popped), waiting, err
}

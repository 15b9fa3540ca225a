// Package store abstracts the key-value primitives the admission and
// locking components need: ordered-set insert/rank/range/remove,
// set-if-absent-with-TTL, cursor key scans and a pub/sub backplane.
// The interface exposes exactly those primitives and nothing else so
// the core stays testable against the in-memory implementation while
// production runs on Redis.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a Subscription whose underlying connection
// has been closed.
var ErrClosed = errors.New("store: subscription closed")

// Member pairs an ordered-set member with its score.
type Member struct {
	Member string
	Score  float64
}

// KV is the coordination store. Implementations must be safe for
// concurrent use. Scores are milliseconds-since-epoch by convention,
// but the store itself does not interpret them.
type KV interface {
	// ZAddNX inserts member into the ordered set at key with the given
	// score only when it is not already present, and reports whether an
	// insert happened. Existing members keep their original score, which
	// is what makes queue positions immutable across re-check-ins.
	ZAddNX(ctx context.Context, key string, score float64, member string) (bool, error)

	// ZAdd inserts or updates member with the given score. Used for
	// heartbeat sets where the score is meant to move.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRank returns the zero-based ascending rank of member, with ok
	// false when the member is not in the set.
	ZRank(ctx context.Context, key, member string) (int64, bool, error)

	// ZScore returns the score of member, with ok false when absent.
	ZScore(ctx context.Context, key, member string) (float64, bool, error)

	// ZCard returns the cardinality of the ordered set.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZRem removes the given members. Removing an absent member is not
	// an error.
	ZRem(ctx context.Context, key string, members ...string) error

	// ZRangeByScore returns up to limit members whose score lies in
	// [min, max], in ascending score order. limit <= 0 means no limit.
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)

	// ZPopMin atomically removes and returns up to count lowest-score
	// members in ascending order.
	ZPopMin(ctx context.Context, key string, count int64) ([]Member, error)

	// SetNX sets key to value with a TTL only when the key does not
	// exist, reporting whether the set happened. This is the
	// mutual-exclusion primitive behind the distributed lock.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Set unconditionally writes key with a TTL (ttl <= 0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value at key, with ok false when absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Del removes the given keys.
	Del(ctx context.Context, keys ...string) error

	// CompareAndDelete removes key only when its current value equals
	// value, reporting whether a delete happened. Guards lock release so
	// an expired holder cannot delete a successor's lock.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Expire resets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Scan walks the keyspace incrementally: it returns keys matching
	// the glob pattern starting at cursor, plus the next cursor (zero
	// when the iteration is complete). Callers must never assume one
	// call returns everything.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
}

// Backplane is the pub/sub fabric that relays realtime broadcasts
// across server instances.
type Backplane interface {
	// Publish sends payload to every subscriber of channel, across all
	// instances. Delivery is at-most-once.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe starts listening on channel. The returned subscription
	// delivers payloads until Close is called or the context ends.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is one live pub/sub listener.
type Subscription interface {
	// Messages yields published payloads. The channel is closed when
	// the subscription ends.
	Messages() <-chan []byte

	// Close tears the subscription down.
	Close() error
}

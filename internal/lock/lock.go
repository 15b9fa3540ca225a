// Package lock implements the short-TTL distributed mutual-exclusion
// primitive used to thin out contention before the database row lock.
// It is advisory only: the SELECT ... FOR UPDATE inside the booking
// transaction remains the correctness boundary, so a lock that expires
// mid-transaction degrades throughput, never safety.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/store"
)

// Locker acquires and releases advisory locks in the shared KV store.
type Locker struct {
	kv  store.KV
	ttl time.Duration
}

// New returns a Locker whose locks expire after ttl.
func New(kv store.KV, ttl time.Duration) *Locker {
	return &Locker{kv: kv, ttl: ttl}
}

// Lock is one held lock. The token proves ownership on release so a
// holder whose TTL lapsed cannot delete a successor's lock.
type Lock struct {
	Key   string
	token string
}

// Acquire takes the lock at key or returns model.ErrContention when
// another holder has it. The lock self-expires after the Locker TTL.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	ok, err := l.kv.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("lock acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s held: %w", key, model.ErrContention)
	}
	return &Lock{Key: key, token: token}, nil
}

// Release frees a held lock. Releasing a lock that already expired and
// was re-acquired by someone else is a no-op.
func (l *Locker) Release(ctx context.Context, lk *Lock) error {
	if lk == nil {
		return nil
	}
	_, err := l.kv.CompareAndDelete(ctx, lk.Key, lk.token)
	return err
}

// AcquireAll takes every key or none. Keys are acquired in sorted
// order so concurrent multi-resource attempts cannot deadlock on each
// other, and released in reverse order on failure.
func (l *Locker) AcquireAll(ctx context.Context, keys []string) ([]*Lock, error) {
	ordered := append([]string(nil), keys...)
	sort.Strings(ordered)

	locks := make([]*Lock, 0, len(ordered))
	for _, key := range ordered {
		lk, err := l.Acquire(ctx, key)
		if err != nil {
			l.ReleaseAll(ctx, locks)
			return nil, err
		}
		locks = append(locks, lk)
	}
	return locks, nil
}

// ReleaseAll frees locks in reverse acquisition order.
func (l *Locker) ReleaseAll(ctx context.Context, locks []*Lock) {
	for i := len(locks) - 1; i >= 0; i-- {
		_ = l.Release(ctx, locks[i])
	}
}

// randomToken returns n random bytes hex-encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

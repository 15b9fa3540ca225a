package store

import (
	"context"
	"math"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process implementation of KV and Backplane. It backs
// unit tests and single-instance development setups where no Redis is
// available. Expirations are checked lazily on access.
type Memory struct {
	mu     sync.Mutex
	zsets  map[string]map[string]float64
	values map[string]memoryValue
	subs   map[string][]*memorySubscription
}

type memoryValue struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		zsets:  make(map[string]map[string]float64),
		values: make(map[string]memoryValue),
		subs:   make(map[string][]*memorySubscription),
	}
}

func (m *Memory) zset(key string) map[string]float64 {
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	return z
}

// sortedMembers returns the members of a zset ordered by score, ties
// broken lexically, mirroring Redis ordering.
func sortedMembers(z map[string]float64) []Member {
	members := make([]Member, 0, len(z))
	for member, score := range z {
		members = append(members, Member{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
	return members
}

func (m *Memory) ZAddNX(_ context.Context, key string, score float64, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zset(key)
	if _, exists := z[member]; exists {
		return false, nil
	}
	z[member] = score
	return true, nil
}

func (m *Memory) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zset(key)[member] = score
	return nil
}

func (m *Memory) ZRank(_ context.Context, key, member string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		return 0, false, nil
	}
	if _, ok := z[member]; !ok {
		return 0, false, nil
	}
	for i, mem := range sortedMembers(z) {
		if mem.Member == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := z[member]
	return score, ok, nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.zsets[key])), nil
}

func (m *Memory) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(z, member)
	}
	if len(z) == 0 {
		delete(m.zsets, key)
	}
	return nil
}

func (m *Memory) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		return nil, nil
	}
	var out []string
	for _, mem := range sortedMembers(z) {
		if mem.Score < min || mem.Score > max {
			continue
		}
		out = append(out, mem.Member)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ZPopMin(_ context.Context, key string, count int64) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok || count <= 0 {
		return nil, nil
	}
	members := sortedMembers(z)
	if int64(len(members)) > count {
		members = members[:count]
	}
	for _, mem := range members {
		delete(z, mem.Member)
	}
	if len(z) == 0 {
		delete(m.zsets, key)
	}
	return members, nil
}

func (m *Memory) getValue(key string) (memoryValue, bool) {
	v, ok := m.values[key]
	if !ok {
		return memoryValue{}, false
	}
	if !v.expiresAt.IsZero() && time.Now().After(v.expiresAt) {
		delete(m.values, key)
		return memoryValue{}, false
	}
	return v, true
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.getValue(key); exists {
		return false, nil
	}
	m.values[key] = newMemoryValue(value, ttl)
	return true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = newMemoryValue(value, ttl)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getValue(key)
	if !ok {
		return "", false, nil
	}
	return v.value, true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
		delete(m.zsets, key)
	}
	return nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getValue(key)
	if !ok || v.value != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.getValue(key); ok {
		m.values[key] = newMemoryValue(v.value, ttl)
	}
	return nil
}

// Scan returns all matching keys in one page. The memory store has no
// real cursor; it reports completion immediately, which satisfies the
// KV contract.
func (m *Memory) Scan(_ context.Context, cursor uint64, match string, _ int64) ([]string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cursor != 0 {
		return nil, 0, nil
	}
	var keys []string
	for key := range m.zsets {
		if matchGlob(match, key) {
			keys = append(keys, key)
		}
	}
	for key := range m.values {
		if _, ok := m.getValue(key); !ok {
			continue
		}
		if matchGlob(match, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, 0, nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	subs := append([]*memorySubscription(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(payload)
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		store:   m,
		channel: channel,
		out:     make(chan []byte, 64),
	}
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	store   *Memory
	channel string
	out     chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- payload:
	default: // drop rather than block a slow subscriber
	}
}

func (s *memorySubscription) Messages() <-chan []byte { return s.out }

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	s.store.mu.Lock()
	subs := s.store.subs[s.channel]
	for i, sub := range subs {
		if sub == s {
			s.store.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.store.mu.Unlock()
	return nil
}

func newMemoryValue(value string, ttl time.Duration) memoryValue {
	v := memoryValue{value: value}
	if ttl > 0 {
		v.expiresAt = time.Now().Add(ttl)
	}
	return v
}

// matchGlob approximates the Redis SCAN MATCH glob. path.Match covers
// the patterns used in this codebase ("queue:*", "active:*").
func matchGlob(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	// path.Match treats "/" specially; the keys here never contain it.
	ok, err := path.Match(pattern, key)
	if err != nil {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return ok
}

// Inf bounds re-exported for callers building score ranges.
var (
	ScoreMin = math.Inf(-1)
	ScoreMax = math.Inf(1)
)

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/store"
)

// SessionStore persists connection sessions in the shared KV store,
// keyed by user id with a multi-hour TTL. Queue and lock state is keyed
// by user identity, not connection id, so the session must survive a
// socket drop: on reconnect the hub replays the recorded room joins and
// the client resumes where it was.
type SessionStore struct {
	kv  store.KV
	ttl time.Duration
}

// NewSessionStore builds a store whose sessions expire ttl after the
// last update.
func NewSessionStore(kv store.KV, ttl time.Duration) *SessionStore {
	if kv == nil {
		panic("nil kv passed to realtime.NewSessionStore")
	}
	return &SessionStore{kv: kv, ttl: ttl}
}

func sessionKey(userID string) string { return "session:" + userID }

// Get returns the user's session, or nil when none is recorded.
func (s *SessionStore) Get(ctx context.Context, userID string) (*model.ConnectionSession, error) {
	raw, ok, err := s.kv.Get(ctx, sessionKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var sess model.ConnectionSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session for %s: %w", userID, err)
	}
	return &sess, nil
}

// Save writes the session and resets its TTL.
func (s *SessionStore) Save(ctx context.Context, sess *model.ConnectionSession) error {
	sess.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", sess.UserID, err)
	}
	return s.kv.Set(ctx, sessionKey(sess.UserID), string(raw), s.ttl)
}

// AddRoom records a room membership, creating the session on first use.
func (s *SessionStore) AddRoom(ctx context.Context, userID, room string) error {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &model.ConnectionSession{UserID: userID}
	}
	if !slices.Contains(sess.Rooms, room) {
		sess.Rooms = append(sess.Rooms, room)
	}
	return s.Save(ctx, sess)
}

// RemoveRoom drops a room membership if present.
func (s *SessionStore) RemoveRoom(ctx context.Context, userID, room string) error {
	sess, err := s.Get(ctx, userID)
	if err != nil || sess == nil {
		return err
	}
	sess.Rooms = slices.DeleteFunc(sess.Rooms, func(r string) bool { return r == room })
	return s.Save(ctx, sess)
}

// SetSelection records the client's last known seat selection so the
// UI can restore it after a reconnect.
func (s *SessionStore) SetSelection(ctx context.Context, userID string, seatIDs []uint64) error {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &model.ConnectionSession{UserID: userID}
	}
	sess.SelectedSeats = seatIDs
	return s.Save(ctx, sess)
}

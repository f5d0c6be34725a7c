// Package session holds the signed-in user of each device and whether the
// persisted copy has been read back yet.
package session

import (
	"context"
	"sync"

	"raseed/internal/core"
)

// State is a snapshot of a device session.
type State struct {
	User        *core.UserProfile
	HasHydrated bool
}

// Store is the single writer of one device's State. Writes are persisted
// before they become visible; a failed write leaves the state unchanged.
type Store struct {
	deviceID  string
	persister Persister

	mu    sync.RWMutex
	state State

	// writeMu serializes persistence so writes land in call order.
	writeMu sync.Mutex
}

func NewStore(deviceID string, persister Persister) *Store {
	return &Store{deviceID: deviceID, persister: persister}
}

func (s *Store) DeviceID() string { return s.deviceID }

// State returns a copy; mutating it has no effect on the store.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

func (s *Store) User() *core.UserProfile {
	return s.State().User
}

func (s *Store) HasHydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.HasHydrated
}

// SetUser replaces the signed-in user. The profile is not validated.
func (s *Store) SetUser(ctx context.Context, user core.UserProfile) error {
	return s.write(ctx, &user)
}

// ClearUser signs the device out. The query history is left alone.
func (s *Store) ClearUser(ctx context.Context) error {
	return s.write(ctx, nil)
}

func (s *Store) write(ctx context.Context, user *core.UserProfile) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.persister.SaveSession(ctx, s.deviceID, user); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.User = user
	s.mu.Unlock()
	return nil
}

// SetHasHydrated only honours the false to true transition.
func (s *Store) SetHasHydrated(v bool) {
	if !v {
		return
	}
	s.mu.Lock()
	s.state.HasHydrated = true
	s.mu.Unlock()
}

// Hydrate reads the persisted session and marks the store hydrated. On a
// read failure the error is returned and the store stays unhydrated, so
// protected pages keep rendering the loading placeholder.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.HasHydrated() {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.HasHydrated() {
		return nil
	}

	user, err := s.persister.LoadSession(ctx, s.deviceID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state.User = user
	s.mu.Unlock()
	s.SetHasHydrated(true)
	return nil
}

// Package memory keeps device storage in process memory. Nothing survives a
// restart; intended for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"raseed/internal/core"
	"raseed/internal/storage"
)

type Store struct {
	mu      sync.Mutex
	values  map[string]map[string][]byte
	queries map[string][]core.Query
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		values:  make(map[string]map[string][]byte),
		queries: make(map[string][]core.Query),
	}
}

func (s *Store) Get(_ context.Context, deviceID, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[deviceID][key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *Store) Put(_ context.Context, deviceID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[deviceID] == nil {
		s.values[deviceID] = make(map[string][]byte)
	}
	s.values[deviceID][key] = slices.Clone(value)
	return nil
}

func (s *Store) Delete(_ context.Context, deviceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values[deviceID], key)
	return nil
}

// AppendQuery stores q; the log is kept oldest first and reversed on read.
func (s *Store) AppendQuery(_ context.Context, deviceID string, q core.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[deviceID] = append(s.queries[deviceID], q)
	return nil
}

func (s *Store) ListQueries(_ context.Context, deviceID string) ([]core.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.queries[deviceID])
	if out == nil {
		out = []core.Query{}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

package fetch

import (
	"context"
	"sync"
)

// Slot holds the result of the latest request. Starting a new load cancels
// the one in flight, and a load that finishes after being superseded is
// dropped rather than stored.
type Slot[T any] struct {
	mu     sync.Mutex
	gen    uint64
	key    string
	cancel context.CancelFunc
	result Result[T]
}

// Load runs load for key, replacing any in-flight request. A superseded
// load returns ErrSuperseded.
func (s *Slot[T]) Load(ctx context.Context, key string, load Loader[T]) Result[T] {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.key = key
	s.cancel = cancel
	s.result = Pending[T]()
	s.mu.Unlock()

	v, err := load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return Failed[T](ErrSuperseded)
	}
	s.cancel = nil
	s.result = From(v, err)
	return s.result
}

// Current returns the key of the latest request and its result, which is
// pending while the load runs.
func (s *Slot[T]) Current() (string, Result[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.result
}

// Cancel aborts the in-flight load, if any.
func (s *Slot[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	if s.result.IsPending() && s.key != "" {
		s.result = Failed[T](context.Canceled)
	}
}

package session

import (
	"context"
	"sync"

	"raseed/internal/cache"
	"raseed/internal/log"
)

// Manager hands out the Store of a device, keeping recently used stores in
// memory and hydrating a store the first time it is opened.
type Manager struct {
	persister Persister
	logger    *log.Logger

	mu     sync.Mutex
	stores *cache.LRUCache[*Store]
}

func NewManager(persister Persister, cacheSize int, logger *log.Logger) *Manager {
	return &Manager{
		persister: persister,
		logger:    logger.WithComponent(log.ComponentSession),
		stores:    cache.NewLRUCache[*Store](cacheSize, 0),
	}
}

// Open returns the device's store, hydrating it if needed. A hydration
// failure is logged and the unhydrated store is still returned; the next
// Open tries again.
func (m *Manager) Open(ctx context.Context, deviceID string) *Store {
	m.mu.Lock()
	store, ok := m.stores.Get(deviceID)
	if !ok {
		store = NewStore(deviceID, m.persister)
		m.stores.Set(deviceID, store)
	}
	m.mu.Unlock()

	if !store.HasHydrated() {
		if err := store.Hydrate(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Session hydration failed",
				log.FieldDeviceID, deviceID,
				log.FieldOperation, log.OpHydrate,
				log.FieldError, err)
		}
	}
	return store
}

// Size reports how many stores are held in memory.
func (m *Manager) Size() int {
	return m.stores.Size()
}

type contextKey struct{}

// NewContext returns ctx carrying the device store.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(contextKey{}).(*Store)
	return s, ok
}

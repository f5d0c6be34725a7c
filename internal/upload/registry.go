package upload

import (
	"sync"
	"time"

	"raseed/internal/cache"
	"raseed/internal/extract"
	"raseed/internal/log"
)

// Registry keeps one Flow per device. Flows idle for longer than the ttl are
// dropped and their extraction cancelled.
type Registry struct {
	extractor extract.Extractor
	saver     Saver
	logger    *log.Logger

	mu    sync.Mutex
	flows *cache.LRUCache[*Flow]
}

func NewRegistry(extractor extract.Extractor, saver Saver, maxFlows int, ttl time.Duration, logger *log.Logger) *Registry {
	r := &Registry{
		extractor: extractor,
		saver:     saver,
		logger:    logger,
	}
	r.flows = cache.NewLRUCache[*Flow](maxFlows, ttl).OnEvict(func(_ string, f *Flow) {
		f.Cancel()
	})
	return r
}

// For returns the device's flow, creating it on first use.
func (r *Registry) For(deviceID string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows.Get(deviceID)
	if !ok {
		f = NewFlow(r.extractor, r.saver, r.logger.With(log.FieldDeviceID, deviceID))
	}
	// Set again so the idle timer restarts.
	r.flows.Set(deviceID, f)
	return f
}

func (r *Registry) CleanExpired() int {
	return r.flows.CleanExpired()
}

func (r *Registry) Size() int {
	return r.flows.Size()
}

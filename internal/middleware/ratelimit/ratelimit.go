// Package ratelimit throttles expensive requests (uploads, assistant
// questions, sign-in) per client with a fixed one-minute window.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"raseed/internal/cache"
)

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	MaxClients        int
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 30,
		MaxClients:        10000,
	}
}

type window struct {
	mu       sync.Mutex
	start    time.Time
	requests int
}

// Limiter counts requests per key. Idle keys expire from the underlying LRU
// after ten minutes; register it with a cache.Manager to sweep them.
type Limiter struct {
	limit   int
	clients *cache.LRUCache[*window]
	mu      sync.Mutex
	hits    atomic.Int64
	now     func() time.Time
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.MaxClients <= 0 {
		config.MaxClients = def.MaxClients
	}
	return &Limiter{
		limit:   config.RequestsPerMinute,
		clients: cache.NewLRUCache[*window](config.MaxClients, 10*time.Minute),
		now:     time.Now,
	}
}

// Allow records a request for key and reports whether it fits the window.
// When it does not, the wait until the window resets is returned.
func (rl *Limiter) Allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	w, ok := rl.clients.Get(key)
	if !ok {
		w = &window{start: now}
	}
	rl.clients.Set(key, w)
	rl.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.start) >= time.Minute {
		w.start = now
		w.requests = 0
	}
	w.requests++
	if w.requests <= rl.limit {
		return true, 0
	}
	rl.hits.Add(1)
	return false, w.start.Add(time.Minute).Sub(now)
}

func (rl *Limiter) ActiveClients() int {
	return rl.clients.Size()
}

// Hits is the number of rejected requests so far.
func (rl *Limiter) Hits() int64 {
	return rl.hits.Load()
}

func (rl *Limiter) CleanExpired() int {
	return rl.clients.CleanExpired()
}

// Middleware limits requests keyed by key(r). onLimit renders the refusal;
// when nil a plain 429 is sent.
func (rl *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := rl.Allow(key(r))
			if !ok {
				secs := int(wait.Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

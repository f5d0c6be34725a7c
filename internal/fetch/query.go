package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"raseed/internal/cache"
)

// Loader produces a fresh value.
type Loader[T any] func(ctx context.Context) (T, error)

// CacheObserver counts cache hits and misses per query name.
type CacheObserver interface {
	ObserveCache(query string, hit bool)
}

type QueryOptions struct {
	// StaleTime is how long a value is served without reloading.
	StaleTime time.Duration
	// Retries is the number of extra attempts after a failed load.
	Retries int
	// MaxEntries bounds the cache; entries also expire after GCTime.
	MaxEntries int
	GCTime     time.Duration
	Observer   CacheObserver
}

// DefaultQueryOptions: one minute stale time, one retry.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		StaleTime:  time.Minute,
		Retries:    1,
		MaxEntries: 1000,
		GCTime:     5 * time.Minute,
	}
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Query caches loads by key. Concurrent loads of the same key share one
// backend call.
type Query[T any] struct {
	name  string
	opts  QueryOptions
	cache *cache.LRUCache[entry[T]]
	group singleflight.Group
	now   func() time.Time

	// A load that started before an invalidation of its key must not fill
	// the cache. invalidated maps prefixes to the generation they were
	// dropped at and is cleared once no load is in flight.
	mu          sync.Mutex
	gen         uint64
	inflight    int
	invalidated map[string]uint64
}

func NewQuery[T any](name string, opts QueryOptions) *Query[T] {
	if opts.MaxEntries < 1 {
		opts.MaxEntries = 1000
	}
	if opts.GCTime < opts.StaleTime {
		opts.GCTime = opts.StaleTime
	}
	return &Query[T]{
		name:        name,
		opts:        opts,
		cache:       cache.NewLRUCache[entry[T]](opts.MaxEntries, opts.GCTime),
		now:         time.Now,
		invalidated: make(map[string]uint64),
	}
}

func (q *Query[T]) Name() string { return q.name }

// Cache exposes the underlying cache so a cache.Manager can sweep it.
func (q *Query[T]) Cache() cache.Cleaner { return q.cache }

// Get serves a fresh cached value or loads one. The load itself is detached
// from ctx cancellation so a caller giving up does not fail the others
// sharing it; the caller still stops waiting when ctx is done.
func (q *Query[T]) Get(ctx context.Context, key string, load Loader[T]) Result[T] {
	if e, ok := q.cache.Get(key); ok && q.now().Sub(e.fetchedAt) < q.opts.StaleTime {
		q.observe(true)
		return OK(e.value)
	}
	q.observe(false)

	ch := q.group.DoChan(key, func() (any, error) {
		start := q.begin()
		v, err := q.loadWithRetry(context.WithoutCancel(ctx), load)
		q.finish(key, start, v, err)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return Failed[T](ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Failed[T](res.Err)
		}
		return OK(res.Val.(T))
	}
}

func (q *Query[T]) loadWithRetry(ctx context.Context, load Loader[T]) (T, error) {
	return backoff.Retry(ctx, func() (T, error) { return load(ctx) },
		backoff.WithBackOff(backoff.NewConstantBackOff(200*time.Millisecond)),
		backoff.WithMaxTries(uint(q.opts.Retries+1)),
	)
}

func (q *Query[T]) begin() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight++
	return q.gen
}

// finish stores a successful load unless its key was invalidated after the
// load started.
func (q *Query[T]) finish(key string, start uint64, v T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	if err == nil && !q.invalidatedSince(key, start) {
		q.cache.Set(key, entry[T]{value: v, fetchedAt: q.now()})
	}
	if q.inflight == 0 {
		clear(q.invalidated)
	}
}

func (q *Query[T]) invalidatedSince(key string, start uint64) bool {
	for prefix, gen := range q.invalidated {
		if gen > start && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Invalidate drops every cached key starting with prefix. Loads already in
// flight for those keys still answer their callers but are not cached.
func (q *Query[T]) Invalidate(prefix string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	if q.inflight > 0 {
		q.invalidated[prefix] = q.gen
	}
	return q.cache.DeletePrefix(prefix)
}

func (q *Query[T]) observe(hit bool) {
	if q.opts.Observer != nil {
		q.opts.Observer.ObserveCache(q.name, hit)
	}
}

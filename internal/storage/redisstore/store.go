// Package redisstore keeps device storage in Redis, for deployments running
// several frontend replicas behind one load balancer.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"raseed/internal/core"
	"raseed/internal/storage"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; defaults to "raseed".
	Prefix string
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ storage.Store = (*Store)(nil)

func New(cfg Config) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return NewWithClient(rdb, cfg.Prefix)
}

func NewWithClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "raseed"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) valueKey(deviceID, key string) string {
	return fmt.Sprintf("%s:device:%s:%s", s.prefix, deviceID, key)
}

func (s *Store) historyKey(deviceID string) string {
	return fmt.Sprintf("%s:device:%s:queries", s.prefix, deviceID)
}

func (s *Store) Get(ctx context.Context, deviceID, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.valueKey(deviceID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, deviceID, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.valueKey(deviceID, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, deviceID, key string) error {
	if err := s.rdb.Del(ctx, s.valueKey(deviceID, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// AppendQuery pushes onto the head of the device list, so LRANGE reads
// newest first.
func (s *Store) AppendQuery(ctx context.Context, deviceID string, q core.Query) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	if err := s.rdb.LPush(ctx, s.historyKey(deviceID), raw).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

func (s *Store) ListQueries(ctx context.Context, deviceID string) ([]core.Query, error) {
	raws, err := s.rdb.LRange(ctx, s.historyKey(deviceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]core.Query, 0, len(raws))
	for _, raw := range raws {
		var q core.Query
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode query: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

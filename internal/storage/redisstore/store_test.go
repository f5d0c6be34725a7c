package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raseed/internal/core"
	"raseed/internal/storage"
)

// Runs only against a real server: REDIS_TEST_ADDR=localhost:6379 go test ./...
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	s := New(Config{Addr: addr, Prefix: "raseed-test-" + uuid.NewString()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKeys(t *testing.T) {
	s := NewWithClient(nil, "")
	assert.Equal(t, "raseed:device:d1:user-storage", s.valueKey("d1", storage.SessionKey))
	assert.Equal(t, "raseed:device:d1:queries", s.historyKey("d1"))
}

func TestStore_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "d1", storage.SessionKey)
	require.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.Put(ctx, "d1", storage.SessionKey, []byte(`{"a":1}`)))
	got, err := s.Get(ctx, "d1", storage.SessionKey)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	for _, text := range []string{"one", "two"} {
		require.NoError(t, s.AppendQuery(ctx, "d1", core.Query{ID: text, Text: text, Origin: core.OriginText}))
	}
	qs, err := s.ListQueries(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "two", qs[0].Text)

	require.NoError(t, s.Delete(ctx, "d1", storage.SessionKey))
}

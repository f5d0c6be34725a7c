// Package storage defines the durable client-side storage used for the
// per-device session and the query-history log.
package storage

import (
	"context"
	"errors"

	"raseed/internal/core"
)

// SessionKey is the key the persisted session lives under.
const SessionKey = "user-storage"

var ErrNotFound = errors.New("not found")

// Ports for storage adapters.
type (
	// KeyValue stores opaque blobs per device and key.
	KeyValue interface {
		// Get returns ErrNotFound when nothing was stored under key.
		Get(ctx context.Context, deviceID, key string) ([]byte, error)
		Put(ctx context.Context, deviceID, key string, value []byte) error
		Delete(ctx context.Context, deviceID, key string) error
	}

	// QueryLog is the append-only assistant query history of a device.
	QueryLog interface {
		AppendQuery(ctx context.Context, deviceID string, q core.Query) error
		// ListQueries returns every query, newest first.
		ListQueries(ctx context.Context, deviceID string) ([]core.Query, error)
	}

	Store interface {
		KeyValue
		QueryLog
		Ping(ctx context.Context) error
		Close() error
	}
)

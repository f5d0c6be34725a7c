// Package history records the assistant queries asked from a device. The log
// only grows; it is independent of the session and survives logout.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"raseed/internal/core"
	"raseed/internal/storage"
)

type Log struct {
	store storage.QueryLog
	now   func() time.Time
	newID func() string
}

func New(store storage.QueryLog) *Log {
	return &Log{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Add records a query and returns the stored entry.
func (l *Log) Add(ctx context.Context, deviceID, text string, origin core.QueryOrigin, confidence float64) (core.Query, error) {
	q := core.Query{
		ID:         l.newID(),
		Text:       strings.TrimSpace(text),
		Timestamp:  l.now().UTC(),
		Confidence: confidence,
		Origin:     origin,
	}
	if err := q.Validate(); err != nil {
		return core.Query{}, err
	}
	if err := l.store.AppendQuery(ctx, deviceID, q); err != nil {
		return core.Query{}, fmt.Errorf("record query: %w", err)
	}
	return q, nil
}

// List returns the device's queries, newest first.
func (l *Log) List(ctx context.Context, deviceID string) ([]core.Query, error) {
	qs, err := l.store.ListQueries(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return qs, nil
}

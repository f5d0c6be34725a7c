// Package sqlite is the default durable store: one database file holding
// every device's session blob and query history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"raseed/internal/core"
	"raseed/internal/log"
	"raseed/internal/storage"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db     *sql.DB
	logger *log.Logger
}

var _ storage.Store = (*Repository)(nil)

func NewRepository(dbPath string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc serializes writers per file; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, logger: logger.WithComponent(log.ComponentStorage)}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Get(ctx context.Context, deviceID, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM device_storage WHERE device_id = ? AND key = ?`,
		deviceID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (r *Repository) Put(ctx context.Context, deviceID, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_storage (device_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		deviceID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	r.logger.DebugContext(ctx, "Device storage written", log.FieldDeviceID, deviceID, "key", key)
	return nil
}

func (r *Repository) Delete(ctx context.Context, deviceID, key string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM device_storage WHERE device_id = ? AND key = ?`, deviceID, key,
	); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *Repository) AppendQuery(ctx context.Context, deviceID string, q core.Query) error {
	var confidence sql.NullFloat64
	if q.Confidence != 0 {
		confidence = sql.NullFloat64{Float64: q.Confidence, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO query_history (id, device_id, text, origin, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, deviceID, q.Text, string(q.Origin), confidence, q.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append query: %w", err)
	}
	return nil
}

func (r *Repository) ListQueries(ctx context.Context, deviceID string) ([]core.Query, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, origin, confidence, created_at
		 FROM query_history WHERE device_id = ? ORDER BY seq DESC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	out := make([]core.Query, 0)
	for rows.Next() {
		var (
			q          core.Query
			origin     string
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&q.ID, &q.Text, &origin, &confidence, &q.Timestamp); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		q.Origin = core.QueryOrigin(origin)
		q.Confidence = confidence.Float64
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return out, nil
}

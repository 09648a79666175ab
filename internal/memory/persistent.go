package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS records (
    key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);
`

// persistentTier wraps the durable SQLite store. A single connection
// serializes writes so concurrent runs committing at the same instant
// cannot corrupt each other's records.
type persistentTier struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

func openPersistentTier(dbPath string) (*persistentTier, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &persistentTier{db: db}, nil
}

func (p *persistentTier) close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.db.Close()
	})
	return p.closeErr
}

// PersistentEntry describes one durable record without its payload.
type PersistentEntry struct {
	Key       string
	Timestamp time.Time
}

// SavePersistent writes data to the durable tier under key,
// timestamped at call time. The write is committed before the call
// returns; later writes to the same key overwrite.
func (s *Store) SavePersistent(ctx context.Context, key string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %w", key, err)
	}

	_, err = s.db.db.ExecContext(ctx,
		`INSERT INTO records (key, data, timestamp) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, timestamp = excluded.timestamp`,
		key, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}

	s.log.Debug("persistent record saved", zap.String("key", key))
	return nil
}

// GetPersistent returns the durable value for key. The value is the
// JSON round trip of what was saved. Returns ErrNotFound when absent.
func (s *Store) GetPersistent(ctx context.Context, key string) (any, error) {
	var encoded string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE key = ?`, key).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %q: %w", key, err)
	}

	var data any
	if err := json.Unmarshal([]byte(encoded), &data); err != nil {
		return nil, fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return data, nil
}

// GetPersistentInto decodes the durable value for key into out, which
// must be a pointer.
func (s *Store) GetPersistentInto(ctx context.Context, key string, out any) error {
	var encoded string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE key = ?`, key).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("failed to read record %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(encoded), out); err != nil {
		return fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return nil
}

// ListRecentPersistent returns at most n durable entries ordered by
// descending timestamp.
func (s *Store) ListRecentPersistent(ctx context.Context, n int) ([]PersistentEntry, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT key, timestamp FROM records ORDER BY timestamp DESC, key LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var entries []PersistentEntry
	for rows.Next() {
		var e PersistentEntry
		if err := rows.Scan(&e.Key, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

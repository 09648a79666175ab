// Package memory implements the pipeline's two-tier store: an
// ephemeral in-process session tier for per-run breadcrumbs and a
// durable SQLite-backed persistent tier for completed creations.
package memory

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one session-tier entry. Later writes to the same key
// overwrite the value and timestamp; there is no history.
type Record struct {
	Key       string
	Data      any
	Timestamp time.Time

	seq uint64
}

type sessionTier struct {
	mu      sync.Mutex
	entries map[string]Record
	seq     uint64
	now     func() time.Time
}

func newSessionTier() *sessionTier {
	return &sessionTier{
		entries: make(map[string]Record),
		now:     time.Now,
	}
}

func (t *sessionTier) save(key string, data any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.entries[key] = Record{
		Key:       key,
		Data:      data,
		Timestamp: t.now(),
		seq:       t.seq,
	}
}

func (t *sessionTier) get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	return rec.Data, true
}

func (t *sessionTier) recent(n int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := make([]Record, 0, len(t.entries))
	for _, rec := range t.entries {
		records = append(records, rec)
	}

	// Descending by timestamp, insertion order breaks ties.
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].seq > records[j].seq
	})

	if n >= 0 && n < len(records) {
		records = records[:n]
	}
	return records
}

func (t *sessionTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]Record)
}

// Store is the dual-tier memory store. The session tier lives for the
// process lifetime; the persistent tier survives restarts. A Store
// holds an open handle to its backing database and must be closed with
// Close when no longer needed.
type Store struct {
	session *sessionTier
	db      *persistentTier
	log     *zap.Logger
}

// Open creates a Store backed by the SQLite database at dbPath,
// creating the file and its parent directory as needed. logger may be
// nil.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	db, err := openPersistentTier(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{
		session: newSessionTier(),
		db:      db,
		log:     logger,
	}, nil
}

// Close releases the persistent tier's database handle. Safe to call
// more than once; the handle is released exactly once.
func (s *Store) Close() error {
	return s.db.close()
}

// SaveSession writes data to the session tier under key, timestamped
// at call time. It never fails.
func (s *Store) SaveSession(key string, data any) {
	s.session.save(key, data)
	s.log.Debug("session record saved", zap.String("key", key))
}

// GetSession returns the session-tier value for key, or false when
// absent.
func (s *Store) GetSession(key string) (any, bool) {
	return s.session.get(key)
}

// ListRecentSessions returns at most n session entries ordered by
// descending timestamp.
func (s *Store) ListRecentSessions(n int) []Record {
	return s.session.recent(n)
}

// ClearSession empties the session tier.
func (s *Store) ClearSession() {
	s.session.clear()
}

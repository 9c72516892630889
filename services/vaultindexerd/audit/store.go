package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Store keeps an append-only log of every event the ingester applied. It lives
// in its own SQLite file so the trail survives rebuilds of the query database.
type Store struct {
	db *sql.DB
}

// Entry is one recorded ingest.
type Entry struct {
	Sequence   uint64
	EventType  string
	Digest     string
	RecordedAt time.Time
}

// Open initialises the audit database at path, creating the schema on first use.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("audit: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS ingest_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        sequence INTEGER NOT NULL UNIQUE,
        event_type TEXT NOT NULL,
        digest TEXT NOT NULL,
        recorded_at TIMESTAMP NOT NULL
    );`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordIngest appends one applied event. Replayed sequences are ignored so the
// log stays consistent when the ingester reprocesses a batch.
func (s *Store) RecordIngest(ctx context.Context, sequence uint64, eventType, digest string) error {
	const stmt = `INSERT OR IGNORE INTO ingest_log(sequence, event_type, digest, recorded_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, int64(sequence), eventType, digest, time.Now().UTC())
	return err
}

// EntriesAfter returns up to limit entries with a sequence greater than cursor,
// in sequence order.
func (s *Store) EntriesAfter(ctx context.Context, cursor uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT sequence, event_type, digest, recorded_at FROM ingest_log WHERE sequence > ? ORDER BY sequence ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, int64(cursor), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var sequence int64
		if err := rows.Scan(&sequence, &entry.EventType, &entry.Digest, &entry.RecordedAt); err != nil {
			return nil, err
		}
		entry.Sequence = uint64(sequence)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count reports how many events have been recorded.
func (s *Store) Count(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM ingest_log`
	row := s.db.QueryRowContext(ctx, query)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LastSequence returns the highest recorded sequence, zero when the log is empty.
func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	const query = `SELECT COALESCE(MAX(sequence), 0) FROM ingest_log`
	row := s.db.QueryRowContext(ctx, query)
	var value int64
	if err := row.Scan(&value); err != nil {
		return 0, err
	}
	return uint64(value), nil
}

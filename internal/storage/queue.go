package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxSize is the queue capacity used when none is configured.
const DefaultMaxSize = 1000

// Record is an envelope stored in a queue.
type Record struct {
	// ID is the row identifier used to delete the record after delivery.
	ID int64

	// EventID is the unique event id; enqueueing a known id is a no-op.
	EventID string

	// Kind is "media" or "custom".
	Kind string

	// Name is the event name.
	Name string

	// SessionID is the media session the event belongs to, possibly empty.
	SessionID string

	// Payload is the serialized envelope.
	Payload []byte

	// CreatedAt is when the record was enqueued.
	CreatedAt time.Time

	// Attempts counts failed delivery attempts.
	Attempts int
}

// Queue is a bounded FIFO of records awaiting delivery. When full, the oldest
// records are evicted. Enqueue reports whether rec was added; a known event id
// is ignored and evicts nothing.
type Queue interface {
	Enqueue(ctx context.Context, rec Record) (bool, error)
	Peek(ctx context.Context, n int) ([]Record, error)
	Delete(ctx context.Context, ids []int64) error
	MarkRetry(ctx context.Context, ids []int64) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// SQLiteQueue is a Queue persisted in a SQLite database.
type SQLiteQueue struct {
	db      *DB
	maxSize int
	now     func() time.Time
}

// NewSQLiteQueue creates a queue on db holding at most maxSize records.
// A maxSize <= 0 falls back to DefaultMaxSize.
func NewSQLiteQueue(db *DB, maxSize int) *SQLiteQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &SQLiteQueue{db: db, maxSize: maxSize, now: time.Now}
}

// Enqueue adds rec, evicting the oldest records if the queue is full.
// Duplicate event ids are ignored before anything is evicted.
func (q *SQLiteQueue) Enqueue(ctx context.Context, rec Record) (bool, error) {
	var exists int
	err := q.db.inner.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM media_events WHERE event_id = ?", rec.EventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}

	if count >= q.maxSize {
		if err := q.evictOldest(ctx, count-q.maxSize+1); err != nil {
			return false, err
		}
	}

	res, err := q.db.inner.ExecContext(ctx,
		`INSERT OR IGNORE INTO media_events (event_id, kind, name, session_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.Kind, rec.Name, rec.SessionID, rec.Payload, q.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return n > 0, nil
}

// Peek returns up to n records, oldest first, without removing them.
func (q *SQLiteQueue) Peek(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}

	rows, err := q.db.inner.QueryContext(ctx,
		`SELECT id, event_id, kind, name, session_id, payload, created_at, attempts
		 FROM media_events
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec       Record
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Kind, &rec.Name, &rec.SessionID,
			&rec.Payload, &createdAt, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// Delete removes the records with the given ids.
func (q *SQLiteQueue) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := inClause(ids)
	query := fmt.Sprintf("DELETE FROM media_events WHERE id IN (%s)", placeholders)
	if _, err := q.db.inner.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

// MarkRetry increments the attempt counter of the given records.
func (q *SQLiteQueue) MarkRetry(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := inClause(ids)
	args = append([]any{q.now().UnixMilli()}, args...)
	query := fmt.Sprintf(
		"UPDATE media_events SET attempts = attempts + 1, last_attempt_at = ? WHERE id IN (%s)",
		placeholders,
	)
	if _, err := q.db.inner.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	return nil
}

// Count returns the number of queued records.
func (q *SQLiteQueue) Count(ctx context.Context) (int, error) {
	var count int
	if err := q.db.inner.QueryRowContext(ctx, "SELECT COUNT(*) FROM media_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) evictOldest(ctx context.Context, n int) error {
	_, err := q.db.inner.ExecContext(ctx,
		`DELETE FROM media_events WHERE id IN (
			SELECT id FROM media_events ORDER BY created_at ASC, id ASC LIMIT ?
		)`,
		n,
	)
	if err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

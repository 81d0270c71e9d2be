package storage

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue. Records are lost when the process
// exits.
type MemoryQueue struct {
	mu      sync.Mutex
	records []Record
	seen    map[string]struct{}
	nextID  int64
	maxSize int
	now     func() time.Time
}

// NewMemoryQueue creates an in-memory queue holding at most maxSize records.
func NewMemoryQueue(maxSize int) *MemoryQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemoryQueue{
		seen:    make(map[string]struct{}),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, rec Record) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.seen[rec.EventID]; ok {
		return false, nil
	}

	for len(q.records) >= q.maxSize {
		delete(q.seen, q.records[0].EventID)
		q.records = q.records[1:]
	}

	q.nextID++
	rec.ID = q.nextID
	rec.CreatedAt = q.now()
	rec.Attempts = 0
	q.records = append(q.records, rec)
	q.seen[rec.EventID] = struct{}{}
	return true, nil
}

// Peek implements Queue.
func (q *MemoryQueue) Peek(_ context.Context, n int) ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 {
		return []Record{}, nil
	}
	n = min(n, len(q.records))
	return slices.Clone(q.records[:n]), nil
}

// Delete implements Queue.
func (q *MemoryQueue) Delete(_ context.Context, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.records = slices.DeleteFunc(q.records, func(r Record) bool {
		if slices.Contains(ids, r.ID) {
			delete(q.seen, r.EventID)
			return true
		}
		return false
	})
	return nil
}

// MarkRetry implements Queue.
func (q *MemoryQueue) MarkRetry(_ context.Context, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.records {
		if slices.Contains(ids, q.records[i].ID) {
			q.records[i].Attempts++
		}
	}
	return nil
}

// Count implements Queue.
func (q *MemoryQueue) Count(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records), nil
}

// Close implements Queue.
func (q *MemoryQueue) Close() error { return nil }

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SebastienMelki/causality-media/internal/storage"
)

// mockSender implements Sender for testing.
type mockSender struct {
	mu        sync.Mutex
	calls     int
	lastBatch [][]byte
	err       error
}

func (s *mockSender) SendBatch(_ context.Context, payloads [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastBatch = payloads
	return s.err
}

func (s *mockSender) getCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingQueue wraps a MemoryQueue and fails Peek.
type failingQueue struct {
	*storage.MemoryQueue
}

func (failingQueue) Peek(context.Context, int) ([]storage.Record, error) {
	return nil, errors.New("db error")
}

func record(i int) storage.Record {
	return storage.Record{
		EventID: fmt.Sprintf("evt-%d", i),
		Kind:    "media",
		Name:    "Play",
		Payload: []byte(fmt.Sprintf(`{"n":%d}`, i)),
	}
}

func count(t *testing.T, q storage.Queue) int {
	t.Helper()
	n, err := q.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func TestNew_EnforcesMinimums(t *testing.T) {
	b := New(storage.NewMemoryQueue(10), &mockSender{}, Config{BatchSize: 1, FlushInterval: time.Millisecond}, nil)

	if b.batchSize != MinBatchSize {
		t.Errorf("batchSize: got %d, want %d", b.batchSize, MinBatchSize)
	}
	if b.flushInterval != MinFlushInterval {
		t.Errorf("flushInterval: got %v, want %v", b.flushInterval, MinFlushInterval)
	}
	if b.maxAttempts != DefaultMaxAttempts {
		t.Errorf("maxAttempts: got %d, want %d", b.maxAttempts, DefaultMaxAttempts)
	}
}

func TestFlush_SendsAndDeletes(t *testing.T) {
	ctx := context.Background()
	q := storage.NewMemoryQueue(100)
	s := &mockSender{}
	b := New(q, s, Config{BatchSize: 100, FlushInterval: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		if err := b.Add(ctx, record(i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if s.getCalls() != 1 {
		t.Errorf("SendBatch calls: got %d, want 1", s.getCalls())
	}
	if len(s.lastBatch) != 3 || string(s.lastBatch[0]) != `{"n":0}` {
		t.Errorf("unexpected batch %q", s.lastBatch)
	}
	if n := count(t, q); n != 0 {
		t.Errorf("remaining events: got %d, want 0", n)
	}
}

func TestFlush_EmptyQueue(t *testing.T) {
	s := &mockSender{}
	b := New(storage.NewMemoryQueue(10), s, Config{}, nil)

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if s.getCalls() != 0 {
		t.Errorf("SendBatch should not be called on an empty queue")
	}
}

func TestFlush_KeepsFailedEvents(t *testing.T) {
	ctx := context.Background()
	q := storage.NewMemoryQueue(100)
	s := &mockSender{err: errors.New("network error")}
	b := New(q, s, Config{BatchSize: 100}, nil)

	_ = b.Add(ctx, record(1))
	_ = b.Add(ctx, record(2))

	if err := b.Flush(ctx); err == nil {
		t.Fatal("expected error from failed send")
	}

	recs, _ := q.Peek(ctx, 10)
	if len(recs) != 2 {
		t.Fatalf("remaining events: got %d, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Attempts != 1 {
			t.Errorf("%s attempts: got %d, want 1", rec.EventID, rec.Attempts)
		}
	}
}

func TestFlush_DropsExhaustedEvents(t *testing.T) {
	ctx := context.Background()
	q := storage.NewMemoryQueue(100)
	s := &mockSender{err: errors.New("unavailable")}
	b := New(q, s, Config{BatchSize: 100, MaxAttempts: 2}, nil)

	var dropped []storage.Record
	b.SetOnDropped(func(records []storage.Record) { dropped = append(dropped, records...) })

	_ = b.Add(ctx, record(1))
	for i := 0; i < 2; i++ {
		_ = b.Flush(ctx)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush after exhaustion: %v", err)
	}

	if len(dropped) != 1 || dropped[0].EventID != "evt-1" {
		t.Errorf("dropped: got %+v, want evt-1", dropped)
	}
	if n := count(t, q); n != 0 {
		t.Errorf("remaining events: got %d, want 0", n)
	}
	if s.getCalls() != 2 {
		t.Errorf("SendBatch calls: got %d, want 2", s.getCalls())
	}
}

func TestFlush_PeekError(t *testing.T) {
	b := New(failingQueue{storage.NewMemoryQueue(10)}, &mockSender{}, Config{}, nil)

	if err := b.Flush(context.Background()); err == nil {
		t.Fatal("expected error from peek failure")
	}
}

func TestDrain_SendsEveryBatch(t *testing.T) {
	ctx := context.Background()
	q := storage.NewMemoryQueue(100)
	s := &mockSender{}
	b := New(q, s, Config{BatchSize: 5}, nil)

	for i := 0; i < 12; i++ {
		_, _ = q.Enqueue(ctx, record(i))
	}

	if err := b.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if s.getCalls() != 3 {
		t.Errorf("SendBatch calls: got %d, want 3", s.getCalls())
	}
	if n := count(t, q); n != 0 {
		t.Errorf("remaining events: got %d, want 0", n)
	}
}

func TestAdd_TriggersFlushAtBatchSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := storage.NewMemoryQueue(100)
	s := &mockSender{}
	b := New(q, s, Config{BatchSize: 5, FlushInterval: time.Minute}, nil)
	b.StartFlushLoop(ctx)
	defer b.Stop()

	for i := 0; i < 5; i++ {
		if err := b.Add(ctx, record(i)); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.getCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.getCalls() == 0 {
		t.Fatal("expected a count-triggered flush")
	}
}

func TestAdd_DuplicatesNotCounted(t *testing.T) {
	ctx := context.Background()
	q := storage.NewMemoryQueue(100)
	b := New(q, &mockSender{}, Config{BatchSize: 5, FlushInterval: time.Minute}, nil)

	for i := 0; i < 10; i++ {
		if err := b.Add(ctx, record(1)); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}

	b.mu.Lock()
	pending := b.pendingCount
	b.mu.Unlock()
	if pending != 1 {
		t.Errorf("pendingCount = %d, want 1", pending)
	}
	if len(b.flushCh) != 0 {
		t.Error("duplicates should not request a flush")
	}
	if n := count(t, q); n != 1 {
		t.Errorf("queued events: got %d, want 1", n)
	}
}

func TestFlushLoop_PeriodicFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := storage.NewMemoryQueue(100)
	s := &mockSender{}
	b := New(q, s, Config{BatchSize: 100}, nil)
	b.flushInterval = 20 * time.Millisecond

	_ = b.Add(ctx, record(1))
	b.StartFlushLoop(ctx)
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for count(t, q) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := count(t, q); n != 0 {
		t.Fatalf("expected the ticker to flush, %d events remain", n)
	}
}

func TestStop_FinalFlush(t *testing.T) {
	ctx := context.Background()
	q := storage.NewMemoryQueue(100)
	s := &mockSender{}
	b := New(q, s, Config{BatchSize: 100, FlushInterval: time.Minute}, nil)
	b.StartFlushLoop(ctx)

	_ = b.Add(ctx, record(1))
	b.Stop()
	b.Stop()

	if s.getCalls() != 1 {
		t.Errorf("SendBatch calls after Stop: got %d, want 1", s.getCalls())
	}
}

func TestStop_WithoutLoop(t *testing.T) {
	b := New(storage.NewMemoryQueue(10), &mockSender{}, Config{}, nil)

	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running loop")
	}
}

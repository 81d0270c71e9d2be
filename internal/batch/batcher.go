// Package batch groups queued media envelopes into delivery batches. A flush
// is triggered by count or by time, whichever comes first. Envelopes are
// persisted to the queue before they are batched, and a failed batch stays
// queued for the next flush.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SebastienMelki/causality-media/internal/storage"
)

// Limits applied by New.
const (
	MinBatchSize       = 5
	MinFlushInterval   = time.Second
	DefaultMaxAttempts = 10
)

// Sender delivers one batch of serialized envelopes.
type Sender interface {
	SendBatch(ctx context.Context, payloads [][]byte) error
}

// Config configures a Batcher.
type Config struct {
	// BatchSize is the queued count that triggers a flush (minimum 5).
	BatchSize int

	// FlushInterval is the time between periodic flushes (minimum 1s).
	FlushInterval time.Duration

	// MaxAttempts drops a record after this many failed sends (default 10).
	MaxAttempts int
}

// Batcher batches queued records and hands them to a Sender.
type Batcher struct {
	queue  storage.Queue
	sender Sender
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration
	maxAttempts   int

	mu           sync.Mutex
	pendingCount int
	lastFlush    time.Time

	flushCh  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopOnce sync.Once

	onError   func(err error)
	onDropped func(records []storage.Record)
}

// New creates a Batcher reading from queue and sending through sender.
func New(queue storage.Queue, sender Sender, cfg Config, logger *slog.Logger) *Batcher {
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = MinBatchSize
	}
	if cfg.FlushInterval < MinFlushInterval {
		cfg.FlushInterval = MinFlushInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Batcher{
		queue:         queue,
		sender:        sender,
		logger:        logger.With("component", "batch"),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxAttempts:   cfg.MaxAttempts,
		lastFlush:     time.Now(),
		flushCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// SetOnError registers a callback for flush failures in the background loop.
func (b *Batcher) SetOnError(fn func(err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// SetOnDropped registers a callback receiving the records dropped after
// MaxAttempts. It runs with the batcher locked and must not call back into it.
func (b *Batcher) SetOnDropped(fn func(records []storage.Record)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDropped = fn
}

// Add enqueues rec and requests a flush once the batch size is reached. It
// never blocks on delivery. A duplicate event id is not counted.
func (b *Batcher) Add(ctx context.Context, rec storage.Record) error {
	added, err := b.queue.Enqueue(ctx, rec)
	if err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	if !added {
		return nil
	}

	b.mu.Lock()
	b.pendingCount++
	shouldFlush := b.pendingCount >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush sends one batch. Sent records are deleted; on failure the records
// stay queued with their attempt counter incremented.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Drain flushes until the queue is empty or a send fails.
func (b *Batcher) Drain(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		count, err := b.queue.Count(ctx)
		if err != nil {
			return fmt.Errorf("count queue: %w", err)
		}
		if count == 0 {
			return nil
		}
		if err := b.flushLocked(ctx); err != nil {
			return err
		}
	}
}

// flushLocked performs the flush. Caller must hold b.mu.
func (b *Batcher) flushLocked(ctx context.Context) error {
	b.lastFlush = time.Now()

	records, err := b.queue.Peek(ctx, b.batchSize)
	if err != nil {
		return fmt.Errorf("peek batch: %w", err)
	}
	if len(records) == 0 {
		b.pendingCount = 0
		return nil
	}

	records, err = b.dropExhausted(ctx, records)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	payloads := make([][]byte, len(records))
	ids := make([]int64, len(records))
	for i, rec := range records {
		payloads[i] = rec.Payload
		ids[i] = rec.ID
	}

	if sendErr := b.sender.SendBatch(ctx, payloads); sendErr != nil {
		if markErr := b.queue.MarkRetry(ctx, ids); markErr != nil {
			sendErr = errors.Join(sendErr, fmt.Errorf("mark retry: %w", markErr))
		}
		return fmt.Errorf("send batch: %w", sendErr)
	}

	if err := b.queue.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete sent events: %w", err)
	}

	b.pendingCount = max(0, b.pendingCount-len(records))
	return nil
}

// dropExhausted deletes records that reached maxAttempts and returns the rest.
func (b *Batcher) dropExhausted(ctx context.Context, records []storage.Record) ([]storage.Record, error) {
	var (
		keep    []storage.Record
		dropped []storage.Record
		ids     []int64
	)
	for _, rec := range records {
		if rec.Attempts >= b.maxAttempts {
			dropped = append(dropped, rec)
			ids = append(ids, rec.ID)
			continue
		}
		keep = append(keep, rec)
	}
	if len(dropped) == 0 {
		return records, nil
	}

	if err := b.queue.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("delete exhausted events: %w", err)
	}
	b.logger.Warn("dropped events after max attempts",
		"count", len(dropped),
		"max_attempts", b.maxAttempts,
	)
	if b.onDropped != nil {
		b.onDropped(dropped)
	}
	return keep, nil
}

// Stop ends the flush loop after a final flush and waits for it to exit.
// It is a no-op if the loop was never started.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		started := b.started
		b.mu.Unlock()

		close(b.stopCh)
		if started {
			<-b.doneCh
		}
	})
}

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/internal/observability"
)

// Archive buffers envelopes as rows and writes one Parquet object per
// partition when the buffer is full or the flush interval elapses. Flushes
// run on the background loop started by Start; Add never uploads.
type Archive struct {
	uploader Uploader
	parquet  *ParquetWriter
	config   Config
	metrics  *observability.Metrics
	logger   *slog.Logger

	flushMu sync.Mutex

	mu        sync.Mutex
	pending   []MediaRow
	lastFlush time.Time
	failing   bool
	closed    bool

	flushCh  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewArchive creates an archive writing through uploader. metrics may be nil.
func NewArchive(uploader Uploader, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Batch.MaxEvents <= 0 {
		cfg.Batch.MaxEvents = defaults.Batch.MaxEvents
	}
	if cfg.Batch.FlushInterval <= 0 {
		cfg.Batch.FlushInterval = defaults.Batch.FlushInterval
	}
	if cfg.Batch.MaxPending <= 0 {
		cfg.Batch.MaxPending = defaults.Batch.MaxPending
	}
	if cfg.Batch.MaxPending < cfg.Batch.MaxEvents {
		cfg.Batch.MaxPending = cfg.Batch.MaxEvents
	}
	if cfg.S3.Prefix == "" {
		cfg.S3.Prefix = defaults.S3.Prefix
	}

	return &Archive{
		uploader:  uploader,
		parquet:   NewParquetWriter(cfg.Parquet),
		config:    cfg,
		metrics:   metrics,
		logger:    logger.With("component", "archive"),
		lastFlush: time.Now(),
		flushCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Add buffers env. Reaching MaxEvents requests a background flush, unless
// the last flush failed: retries then wait for the flush interval. Beyond
// MaxPending the oldest rows are dropped.
func (a *Archive) Add(ctx context.Context, env events.Envelope) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrArchiveClosed
	}
	a.pending = append(a.pending, MediaRowFromEnvelope(env))
	dropped := a.trimLocked()
	shouldFlush := len(a.pending) >= a.config.Batch.MaxEvents && !a.failing
	a.mu.Unlock()

	a.recordDropped(ctx, dropped)

	if shouldFlush {
		select {
		case a.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// trimLocked drops the oldest rows beyond MaxPending and returns how many.
func (a *Archive) trimLocked() int {
	over := len(a.pending) - a.config.Batch.MaxPending
	if over <= 0 {
		return 0
	}
	a.pending = append([]MediaRow(nil), a.pending[over:]...)
	return over
}

func (a *Archive) recordDropped(ctx context.Context, dropped int) {
	if dropped == 0 {
		return
	}
	a.logger.Warn("archive buffer full, dropped oldest rows", "dropped", dropped)
	if a.metrics != nil {
		a.metrics.ArchiveRowsDropped.Add(ctx, int64(dropped))
	}
}

// Pending returns the number of buffered rows.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Start runs the background flush loop until ctx is cancelled or Close is
// called.
func (a *Archive) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	go a.flushLoop(ctx)
}

// flushLoop flushes on request from Add and when the interval elapses.
func (a *Archive) flushLoop(ctx context.Context) {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.config.Batch.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-a.flushCh:
			a.flushAndLog(ctx)
		case <-ticker.C:
			a.mu.Lock()
			count := len(a.pending)
			sinceFlush := time.Since(a.lastFlush)
			a.mu.Unlock()

			if count > 0 && sinceFlush >= a.config.Batch.FlushInterval {
				a.logger.Debug("time-based flush triggered",
					"rows", count,
					"interval", sinceFlush,
				)
				a.flushAndLog(ctx)
			}
		}
	}
}

func (a *Archive) flushAndLog(ctx context.Context) {
	if err := a.Flush(ctx); err != nil {
		a.logger.Error("failed to flush archive", "error", err)
	}
}

// Flush writes every buffered partition. Rows of partitions that fail to
// upload are put back in the buffer and the errors are joined.
func (a *Archive) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	flushStart := time.Now()

	a.mu.Lock()
	rows := a.pending
	a.pending = nil
	a.lastFlush = time.Now()
	a.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	var order []Partition
	partitions := make(map[Partition][]MediaRow)
	for _, row := range rows {
		p := partitionOfRow(row)
		if _, ok := partitions[p]; !ok {
			order = append(order, p)
		}
		partitions[p] = append(partitions[p], row)
	}

	a.logger.Info("flushing archive", "rows", len(rows), "partitions", len(order))

	var errs []error
	var failed []MediaRow
	for _, p := range order {
		if err := a.writePartition(ctx, p, partitions[p]); err != nil {
			a.logger.Error("failed to write partition, keeping rows for retry",
				"app_id", p.AppID,
				"category", p.Category,
				"rows", len(partitions[p]),
				"error", err,
			)
			failed = append(failed, partitions[p]...)
			errs = append(errs, err)
		}
	}

	a.mu.Lock()
	a.failing = len(errs) > 0
	var dropped int
	if len(failed) > 0 {
		a.pending = append(failed, a.pending...)
		dropped = a.trimLocked()
	}
	a.mu.Unlock()

	a.recordDropped(ctx, dropped)

	a.logger.Debug("archive flushed",
		"rows", len(rows),
		"failed_partitions", len(errs),
		"duration_ms", time.Since(flushStart).Milliseconds(),
	)

	return errors.Join(errs...)
}

// partitionOfRow returns the partition a row was derived into.
func partitionOfRow(row MediaRow) Partition {
	return Partition{
		AppID:    row.AppID,
		Category: row.Category,
		Year:     row.Year,
		Month:    row.Month,
		Day:      row.Day,
		Hour:     row.Hour,
	}
}

// writePartition writes one partition of rows to S3.
func (a *Archive) writePartition(ctx context.Context, p Partition, rows []MediaRow) error {
	data, err := a.parquet.Write(rows)
	if err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}

	key := ObjectKey(a.config.S3.Prefix, p, uuid.New().String())
	if err := a.uploader.Upload(ctx, key, data); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	if a.metrics != nil {
		a.metrics.ArchiveFilesWritten.Add(ctx, 1)
		a.metrics.ArchiveFileSize.Record(ctx, int64(len(data)))
	}

	a.logger.Debug("partition written",
		"key", key,
		"rows", len(rows),
		"size_bytes", len(data),
	)
	return nil
}

// Close stops the flush loop and writes whatever is still buffered.
// Subsequent Adds fail with ErrArchiveClosed.
func (a *Archive) Close(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		started := a.started
		a.mu.Unlock()

		close(a.stopCh)
		if started {
			select {
			case <-a.doneCh:
			case <-ctx.Done():
				a.logger.Warn("timed out waiting for flush loop")
			}
		}
	})

	if err := a.Flush(ctx); err != nil {
		return fmt.Errorf("final flush failed: %w", err)
	}
	return nil
}

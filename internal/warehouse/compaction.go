package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/SebastienMelki/causality-media/internal/observability"
)

// Default compaction parameters.
const (
	// DefaultTargetSize is the target compacted file size (128 MB).
	DefaultTargetSize int64 = 128 * 1024 * 1024

	// DefaultMinFiles is the minimum number of small files needed to trigger compaction.
	DefaultMinFiles = 2
)

// ObjectStore is the storage a Compactor works on. S3Client implements it.
type ObjectStore interface {
	Uploader
	List(ctx context.Context, prefix string) ([]Object, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys []string) error
}

// Compactor merges the small files the archive leaves behind into larger
// ones. It only touches cold partitions (older than the current hour) and
// keeps no state of its own: the object layout is the state, so a run that
// fails partway is finished by the next one.
type Compactor struct {
	store   ObjectStore
	parquet *ParquetWriter
	prefix  string
	config  CompactionConfig
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewCompactor creates a compactor over the archive written with cfg.
func NewCompactor(store ObjectStore, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	cc := cfg.Compaction
	if cc.TargetSize <= 0 {
		cc.TargetSize = DefaultTargetSize
	}
	if cc.MinFiles < 2 {
		cc.MinFiles = DefaultMinFiles
	}
	if cc.Schedule <= 0 {
		cc.Schedule = time.Hour
	}
	prefix := cfg.S3.Prefix
	if prefix == "" {
		prefix = DefaultConfig().S3.Prefix
	}

	return &Compactor{
		store:   store,
		parquet: NewParquetWriter(cfg.Parquet),
		prefix:  prefix,
		config:  cc,
		metrics: metrics,
		logger:  logger.With("component", "compactor"),
		now:     time.Now,
	}
}

// CompactAll compacts every cold partition. A failing partition is logged
// and skipped; only a listing failure aborts the run.
func (c *Compactor) CompactAll(ctx context.Context) error {
	start := time.Now()
	c.logger.Info("starting compaction run")

	objects, err := c.store.List(ctx, c.prefix+"/")
	if err != nil {
		return fmt.Errorf("list archive: %w", err)
	}

	partitions := coldPartitions(objects, c.now())
	c.logger.Info("found cold partitions", "count", len(partitions))

	var compacted int
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return err
		}

		did, err := c.compactPartition(ctx, partition, objects)
		if err != nil {
			c.logger.Error("failed to compact partition",
				"partition", partition,
				"error", err,
			)
			continue
		}
		if did {
			compacted++
		}
	}

	duration := float64(time.Since(start).Milliseconds())
	if c.metrics != nil {
		c.metrics.CompactionRuns.Add(ctx, 1)
		c.metrics.CompactionDuration.Record(ctx, duration)
	}

	c.logger.Info("compaction run complete",
		"partitions_total", len(partitions),
		"partitions_compacted", compacted,
		"duration_ms", duration,
	)
	return nil
}

// CompactPartition compacts the partition with the given key prefix. It
// reports whether anything was merged.
func (c *Compactor) CompactPartition(ctx context.Context, partition string) (bool, error) {
	objects, err := c.store.List(ctx, partition)
	if err != nil {
		return false, fmt.Errorf("list partition %s: %w", partition, err)
	}
	return c.compactPartition(ctx, partition, objects)
}

func (c *Compactor) compactPartition(ctx context.Context, partition string, objects []Object) (bool, error) {
	var small []Object
	for _, obj := range objects {
		if partitionPrefix(obj.Key) == partition && obj.Size < c.config.TargetSize {
			small = append(small, obj)
		}
	}

	if len(small) < c.config.MinFiles {
		c.logger.Debug("skipping partition, not enough small files",
			"partition", partition,
			"small_files", len(small),
			"min_required", c.config.MinFiles,
		)
		if c.metrics != nil {
			c.metrics.CompactionPartitionsSkipped.Add(ctx, 1)
		}
		return false, nil
	}

	c.logger.Info("compacting partition",
		"partition", partition,
		"small_files", len(small),
	)

	for i, batch := range groupIntoBatches(small, c.config.TargetSize, c.config.MinFiles) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := c.mergeBatch(ctx, partition, batch); err != nil {
			return false, fmt.Errorf("merge batch %d: %w", i, err)
		}
	}
	return true, nil
}

// groupIntoBatches groups files into batches whose total size approaches
// target. A trailing group smaller than minFiles is left alone.
func groupIntoBatches(files []Object, target int64, minFiles int) [][]Object {
	var batches [][]Object
	var current []Object
	var size int64

	for _, f := range files {
		if size+f.Size > target && len(current) >= minFiles {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, f)
		size += f.Size
	}

	if len(current) >= minFiles {
		batches = append(batches, current)
	}
	return batches
}

// mergeBatch downloads batch, writes its rows as one file and deletes the
// sources once the merged file is stored. Unreadable files are left in place.
func (c *Compactor) mergeBatch(ctx context.Context, partition string, batch []Object) error {
	var rows []MediaRow
	var merged []string

	for _, obj := range batch {
		data, err := c.store.Download(ctx, obj.Key)
		if err != nil {
			return fmt.Errorf("download %s: %w", obj.Key, err)
		}

		fileRows, err := parquet.Read[MediaRow](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			c.logger.Warn("skipping corrupt parquet file",
				"key", obj.Key,
				"error", err,
			)
			continue
		}
		rows = append(rows, fileRows...)
		merged = append(merged, obj.Key)
	}

	if len(merged) < 2 {
		c.logger.Warn("too few readable files in batch, skipping",
			"partition", partition,
			"readable", len(merged),
		)
		return nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TimestampMS < rows[j].TimestampMS
	})

	data, err := c.parquet.Write(rows)
	if err != nil {
		return fmt.Errorf("write compacted file: %w", err)
	}

	key := fmt.Sprintf("%scompacted_%s.parquet", partition, uuid.New().String())
	if err := c.store.Upload(ctx, key, data); err != nil {
		return fmt.Errorf("upload compacted file %s: %w", key, err)
	}

	c.logger.Info("uploaded compacted file",
		"key", key,
		"rows", len(rows),
		"size_bytes", len(data),
		"source_files", len(merged),
	)

	// The compacted file exists now; a failed delete only leaves duplicates.
	if err := c.store.Delete(ctx, merged); err != nil {
		c.logger.Error("failed to delete original files after compaction",
			"partition", partition,
			"error", err,
		)
	}

	if c.metrics != nil {
		c.metrics.CompactionFilesCompacted.Add(ctx, int64(len(merged)))
	}
	return nil
}

// Start runs CompactAll every Schedule until ctx is cancelled or Stop is
// called. The first run happens after one interval.
func (c *Compactor) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn("compactor already running")
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.running = true

	go c.run(ctx, c.stopCh, c.doneCh)

	c.logger.Info("compaction scheduler started", "interval", c.config.Schedule)
}

// Stop ends the schedule and waits for an in-progress run to finish.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	done := c.doneCh
	c.running = false
	c.mu.Unlock()

	<-done
	c.logger.Info("compaction scheduler stopped")
}

func (c *Compactor) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(c.config.Schedule)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			c.logger.Info("scheduled compaction triggered")
			if err := c.CompactAll(ctx); err != nil {
				c.logger.Error("scheduled compaction failed", "error", err)
			}
		}
	}
}

// partitionRegex matches the Hive-style partition part of an object key.
var partitionRegex = regexp.MustCompile(
	`^(.*?/app_id=[^/]+/category=[^/]+/year=(\d{4})/month=(\d{2})/day=(\d{2})/hour=(\d{2})/)`,
)

// partitionPrefix returns the partition prefix of key, or "" when key is not
// an archive object.
// "media/app_id=a/category=ad/year=2026/month=01/day=15/hour=10/media_x.parquet"
// yields "media/app_id=a/category=ad/year=2026/month=01/day=15/hour=10/".
func partitionPrefix(key string) string {
	matches := partitionRegex.FindStringSubmatch(key)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// isColdPartition reports whether partition is older than the hour of now.
func isColdPartition(partition string, now time.Time) bool {
	matches := partitionRegex.FindStringSubmatch(partition)
	if len(matches) < 6 {
		return false
	}

	year, _ := strconv.Atoi(matches[2])
	month, _ := strconv.Atoi(matches[3])
	day, _ := strconv.Atoi(matches[4])
	hour, _ := strconv.Atoi(matches[5])

	partitionTime := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	now = now.UTC()
	currentHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)

	return partitionTime.Before(currentHour)
}

// coldPartitions returns the sorted distinct cold partition prefixes of objects.
func coldPartitions(objects []Object, now time.Time) []string {
	set := make(map[string]struct{})
	for _, obj := range objects {
		p := partitionPrefix(obj.Key)
		if p != "" && isColdPartition(p, now) {
			set[p] = struct{}{}
		}
	}

	partitions := make([]string, 0, len(set))
	for p := range set {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	return partitions
}

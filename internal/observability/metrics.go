package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments shared by the sinks. Instruments are created
// once at startup.
type Metrics struct {
	// HTTP metrics for the metrics server
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Forwarding client metrics
	EventsEnqueued  otelmetric.Int64Counter
	BatchesSent     otelmetric.Int64Counter
	BatchFailures   otelmetric.Int64Counter
	EventsExhausted otelmetric.Int64Counter
	FlushLatency    otelmetric.Float64Histogram

	// Deduplication metrics
	DedupDropped otelmetric.Int64Counter

	// NATS metrics
	NATSPublished      otelmetric.Int64Counter
	NATSPublishFailure otelmetric.Int64Counter

	// DLQ metrics
	DLQDepth otelmetric.Int64UpDownCounter

	// Archive metrics
	ArchiveFilesWritten otelmetric.Int64Counter
	ArchiveFileSize     otelmetric.Int64Histogram
	ArchiveRowsDropped  otelmetric.Int64Counter

	// Compaction metrics
	CompactionRuns              otelmetric.Int64Counter
	CompactionFilesCompacted    otelmetric.Int64Counter
	CompactionPartitionsSkipped otelmetric.Int64Counter
	CompactionDuration          otelmetric.Float64Histogram
}

// NewMetrics creates every instrument from meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsEnqueued, err = meter.Int64Counter(
		"sink.events.enqueued",
		otelmetric.WithDescription("Media envelopes queued for delivery"),
	)
	if err != nil {
		return nil, err
	}

	m.BatchesSent, err = meter.Int64Counter(
		"sink.batches.sent",
		otelmetric.WithDescription("Batches delivered to the ingestion endpoint"),
	)
	if err != nil {
		return nil, err
	}

	m.BatchFailures, err = meter.Int64Counter(
		"sink.batches.failed",
		otelmetric.WithDescription("Batch deliveries that failed after retries"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsExhausted, err = meter.Int64Counter(
		"sink.events.exhausted",
		otelmetric.WithDescription("Queued envelopes dropped after the maximum delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	m.FlushLatency, err = meter.Float64Histogram(
		"sink.flush.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Batch send latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.DedupDropped, err = meter.Int64Counter(
		"dedup.dropped",
		otelmetric.WithDescription("Duplicate envelopes dropped"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSPublished, err = meter.Int64Counter(
		"nats.messages.published",
		otelmetric.WithDescription("Media envelopes published to JetStream"),
	)
	if err != nil {
		return nil, err
	}

	m.NATSPublishFailure, err = meter.Int64Counter(
		"nats.messages.failed",
		otelmetric.WithDescription("JetStream publish failures"),
	)
	if err != nil {
		return nil, err
	}

	m.DLQDepth, err = meter.Int64UpDownCounter(
		"dlq.depth",
		otelmetric.WithDescription("Envelopes moved to the dead-letter stream"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveFilesWritten, err = meter.Int64Counter(
		"s3.files.written",
		otelmetric.WithDescription("Archive files written to S3"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveFileSize, err = meter.Int64Histogram(
		"s3.file.size",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Archive file sizes in bytes"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveRowsDropped, err = meter.Int64Counter(
		"archive.rows.dropped",
		otelmetric.WithDescription("Buffered archive rows dropped while uploads failed"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionRuns, err = meter.Int64Counter(
		"compaction.runs",
		otelmetric.WithDescription("Compaction runs completed"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionFilesCompacted, err = meter.Int64Counter(
		"compaction.files.compacted",
		otelmetric.WithDescription("Small archive files merged into compacted files"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionPartitionsSkipped, err = meter.Int64Counter(
		"compaction.partitions.skipped",
		otelmetric.WithDescription("Partitions skipped for lack of small files"),
	)
	if err != nil {
		return nil, err
	}

	m.CompactionDuration, err = meter.Float64Histogram(
		"compaction.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Compaction run duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

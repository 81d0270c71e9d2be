package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SebastienMelki/causality-media/internal/batch"
	"github.com/SebastienMelki/causality-media/internal/dedup"
	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/internal/observability"
	"github.com/SebastienMelki/causality-media/internal/storage"
	"github.com/SebastienMelki/causality-media/internal/transport"
	"github.com/SebastienMelki/causality-media/media"
)

// Client is a media.Host that forwards events to the Causality ingestion
// endpoint. Events are converted to envelopes, deduplicated, queued and sent
// in batches by a background loop.
type Client struct {
	config  ClientConfig
	queue   storage.Queue
	batcher *batch.Batcher
	dedup   *dedup.Filter
	metrics *observability.Metrics
	logger  *slog.Logger

	cancelFn  context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewClient creates a Client and starts its flush loop. Call Close when done
// to flush remaining events and release the queue.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "sink-client")

	queue, err := openQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tc := transport.NewClient(transport.Config{
		Endpoint:          cfg.Endpoint,
		APIKey:            cfg.APIKey,
		UserAgent:         "causality-media/" + media.SDKVersion,
		Timeout:           cfg.Timeout,
		Retry:             cfg.Retry,
		RequestsPerSecond: cfg.RequestsPerSecond,
		HTTPClient:        cfg.HTTPClient,
	}, cfg.Logger)

	b := batch.New(queue, &meteredSender{next: tc, metrics: cfg.Metrics}, batch.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		MaxAttempts:   cfg.MaxAttempts,
	}, cfg.Logger)

	c := &Client{
		config:  cfg,
		queue:   queue,
		batcher: b,
		dedup:   dedup.New(cfg.Dedup, cfg.Metrics, cfg.Logger),
		metrics: cfg.Metrics,
		logger:  logger,
	}

	b.SetOnError(func(err error) {
		logger.Error("background flush failed", "error", err)
	})
	b.SetOnDropped(c.deadLetter)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancelFn = cancel
	b.StartFlushLoop(loopCtx)
	c.dedup.Start(loopCtx)

	logger.Info("forwarding client started",
		"endpoint", cfg.Endpoint,
		"app_id", cfg.AppID,
		"persistent", cfg.DataPath != "",
	)
	return c, nil
}

func openQueue(ctx context.Context, cfg ClientConfig) (storage.Queue, error) {
	if cfg.DataPath == "" {
		return storage.NewMemoryQueue(cfg.MaxQueueSize), nil
	}
	db, err := storage.OpenDB(ctx, cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("sink: open queue: %w", err)
	}
	return storage.NewSQLiteQueue(db, cfg.MaxQueueSize), nil
}

// DeadLetter receives envelopes the client gave up delivering.
// *nats.DeadLetterPublisher implements it.
type DeadLetter interface {
	DeadLetter(ctx context.Context, env events.Envelope, attempts int, reason string) error
}

// deadLetter hands exhausted records to the configured DeadLetter.
func (c *Client) deadLetter(records []storage.Record) {
	ctx := context.Background()
	if c.metrics != nil {
		c.metrics.EventsExhausted.Add(ctx, int64(len(records)))
	}
	if c.config.DeadLetter == nil {
		return
	}

	for _, rec := range records {
		env, err := events.Unmarshal(rec.Payload)
		if err != nil {
			c.logger.Error("failed to decode exhausted envelope", "event_id", rec.EventID, "error", err)
			continue
		}
		if err := c.config.DeadLetter.DeadLetter(ctx, env, rec.Attempts, "max delivery attempts exceeded"); err != nil {
			c.logger.Error("failed to dead-letter envelope", "event_id", env.ID, "error", err)
		}
	}
}

// LogMediaEvent implements media.Host.
func (c *Client) LogMediaEvent(event *media.Event) {
	c.Track(context.Background(), events.FromMediaEvent(c.config.AppID, event))
}

// LogCustomEvent implements media.Host.
func (c *Client) LogCustomEvent(event *media.CustomEvent) {
	c.Track(context.Background(), events.FromCustomEvent(c.config.AppID, event))
}

// Track queues env for delivery. Duplicates and events tracked after Close
// are dropped with a log line; Track never blocks on the network.
func (c *Client) Track(ctx context.Context, env events.Envelope) {
	if c.closed.Load() {
		c.logger.Warn("event dropped", "event_id", env.ID, "error", ErrClosed)
		return
	}
	if c.dedup.IsDuplicate(env.Key()) {
		return
	}

	payload, err := env.Marshal()
	if err != nil {
		c.logger.Warn("failed to encode envelope", "event_id", env.ID, "error", err)
		return
	}

	rec := storage.Record{
		EventID:   env.Key(),
		Kind:      env.Kind,
		Name:      env.Name,
		SessionID: env.SessionID,
		Payload:   payload,
		CreatedAt: env.Timestamp,
	}
	if err := c.batcher.Add(ctx, rec); err != nil {
		c.logger.Warn("failed to queue envelope", "event_id", env.ID, "error", err)
		return
	}

	if c.metrics != nil {
		c.metrics.EventsEnqueued.Add(ctx, 1)
	}
}

// Pending returns the number of queued events.
func (c *Client) Pending(ctx context.Context) (int, error) {
	return c.queue.Count(ctx)
}

// Flush synchronously sends every queued event. It stops at the first
// failed batch; the failed events stay queued.
func (c *Client) Flush(ctx context.Context) error {
	return c.batcher.Drain(ctx)
}

// Close flushes remaining events, stops background work and closes the
// queue. Close is safe to call multiple times; subsequent calls are no-ops.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if flushErr := c.Flush(ctx); flushErr != nil {
			err = fmt.Errorf("final flush: %w", flushErr)
		}

		c.batcher.Stop()
		c.dedup.Stop()
		c.cancelFn()

		if closeErr := c.queue.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close queue: %w", closeErr))
		}
		c.logger.Info("forwarding client closed")
	})
	return err
}

// meteredSender records batch outcomes around a batch.Sender.
type meteredSender struct {
	next    batch.Sender
	metrics *observability.Metrics
}

func (s *meteredSender) SendBatch(ctx context.Context, payloads [][]byte) error {
	start := time.Now()
	err := s.next.SendBatch(ctx, payloads)
	if s.metrics == nil {
		return err
	}

	s.metrics.FlushLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.metrics.BatchFailures.Add(ctx, 1)
		return err
	}
	s.metrics.BatchesSent.Add(ctx, 1)
	return nil
}

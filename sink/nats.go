package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/internal/observability"
	"github.com/SebastienMelki/causality-media/media"
)

// EnvelopePublisher publishes envelopes to a stream. *nats.Publisher
// implements it.
type EnvelopePublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
	PublishBatch(ctx context.Context, envs []events.Envelope) ([]events.Envelope, error)
}

// NATS host defaults.
const (
	// DefaultPublishTimeout bounds a single publish made from a Host call.
	DefaultPublishTimeout = 5 * time.Second

	// DefaultMaxPending caps the envelopes kept for retry.
	DefaultMaxPending = 10000
)

// NATS is a media.Host that publishes every event to JetStream. Envelopes
// that fail to publish are kept and retried by Flush. After a failure,
// Host calls skip publishing and only buffer until one publish timeout has
// passed, so a stream outage does not stall the player.
type NATS struct {
	publisher  EnvelopePublisher
	appID      string
	timeout    time.Duration
	maxPending int
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	failed     []events.Envelope
	retryAfter time.Time
}

// NewNATS creates a NATS host. metrics may be nil.
func NewNATS(publisher EnvelopePublisher, appID string, metrics *observability.Metrics, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{
		publisher:  publisher,
		appID:      appID,
		timeout:    DefaultPublishTimeout,
		maxPending: DefaultMaxPending,
		metrics:    metrics,
		logger:     logger.With("component", "sink-nats"),
		now:        time.Now,
	}
}

// SetMaxPending sets how many failed envelopes are kept for retry. Beyond
// it the oldest are dropped. Values below 1 are ignored.
func (n *NATS) SetMaxPending(max int) {
	if max < 1 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maxPending = max
}

// SetPublishTimeout sets the timeout of a publish made from a Host call,
// which is also how long publishing is skipped after a failure.
func (n *NATS) SetPublishTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timeout = d
}

// LogMediaEvent implements media.Host.
func (n *NATS) LogMediaEvent(event *media.Event) {
	n.publish(events.FromMediaEvent(n.appID, event))
}

// LogCustomEvent implements media.Host.
func (n *NATS) LogCustomEvent(event *media.CustomEvent) {
	n.publish(events.FromCustomEvent(n.appID, event))
}

func (n *NATS) publish(env events.Envelope) {
	n.mu.Lock()
	timeout := n.timeout
	skip := n.now().Before(n.retryAfter)
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if skip {
		n.keep(ctx, env)
		return
	}

	if err := n.publisher.Publish(ctx, env); err != nil {
		n.logger.Warn("publish failed, will retry on flush",
			"event_id", env.ID,
			"name", env.Name,
			"error", err,
		)
		n.mu.Lock()
		n.retryAfter = n.now().Add(timeout)
		n.mu.Unlock()
		n.keep(ctx, env)
		return
	}

	if n.metrics != nil {
		n.metrics.NATSPublished.Add(ctx, 1)
	}
}

// keep buffers env for Flush, dropping the oldest envelopes beyond the
// pending limit.
func (n *NATS) keep(ctx context.Context, env events.Envelope) {
	n.mu.Lock()
	n.failed = append(n.failed, env)
	dropped := n.trimLocked()
	n.mu.Unlock()

	if n.metrics != nil {
		n.metrics.NATSPublishFailure.Add(ctx, 1)
	}
	n.recordDropped(ctx, dropped)
}

func (n *NATS) trimLocked() int {
	over := len(n.failed) - n.maxPending
	if over <= 0 {
		return 0
	}
	n.failed = append([]events.Envelope(nil), n.failed[over:]...)
	return over
}

func (n *NATS) recordDropped(ctx context.Context, dropped int) {
	if dropped == 0 {
		return
	}
	n.logger.Warn("retry buffer full, dropped oldest envelopes", "dropped", dropped)
	if n.metrics != nil {
		n.metrics.NATSPublishFailure.Add(ctx, int64(dropped))
	}
}

// Pending returns the number of envelopes waiting to be republished.
func (n *NATS) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failed)
}

// Flush republishes envelopes whose first publish failed. Envelopes that fail
// again are kept for the next Flush. The server drops any that were in fact
// stored, since the envelope key is the message id.
func (n *NATS) Flush(ctx context.Context) error {
	n.mu.Lock()
	retry := n.failed
	n.failed = nil
	n.mu.Unlock()

	if len(retry) == 0 {
		return nil
	}

	still, err := n.publisher.PublishBatch(ctx, retry)

	if n.metrics != nil {
		n.metrics.NATSPublished.Add(ctx, int64(len(retry)-len(still)))
	}
	n.mu.Lock()
	var dropped int
	if len(still) > 0 {
		n.failed = append(still, n.failed...)
		dropped = n.trimLocked()
	} else {
		n.retryAfter = time.Time{}
	}
	n.mu.Unlock()

	n.recordDropped(ctx, dropped)
	return err
}

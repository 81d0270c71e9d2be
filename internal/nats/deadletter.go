package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/internal/observability"
)

// DeadLetterPrefix is prepended to the subject of dead-lettered envelopes.
const DeadLetterPrefix = "dlq"

// Dead-letter headers.
const (
	HeaderDLQOriginalSubject = "X-DLQ-Original-Subject"
	HeaderDLQAttempts        = "X-DLQ-Attempts"
	HeaderDLQReason          = "X-DLQ-Reason"
)

// msgPublisher is the subset of jetstream.JetStream used to publish
// messages with headers.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// DeadLetterPublisher moves envelopes that could not be delivered elsewhere
// to "dlq.{subject}" for later investigation.
type DeadLetterPublisher struct {
	js      msgPublisher
	prefix  string
	appID   string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDeadLetterPublisher creates a dead-letter publisher. metrics may be nil.
func NewDeadLetterPublisher(js msgPublisher, prefix, appID string, metrics *observability.Metrics, logger *slog.Logger) *DeadLetterPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "media"
	}
	return &DeadLetterPublisher{
		js:      js,
		prefix:  prefix,
		appID:   appID,
		metrics: metrics,
		logger:  logger.With("component", "dlq-publisher"),
	}
}

// Subject returns the dead-letter subject of env.
func (d *DeadLetterPublisher) Subject(env events.Envelope) string {
	return DeadLetterPrefix + "." + subject(d.prefix, d.appID, env)
}

// DeadLetter publishes env with the number of failed delivery attempts and
// the reason it was given up on.
func (d *DeadLetterPublisher) DeadLetter(ctx context.Context, env events.Envelope, attempts int, reason string) error {
	data, err := Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	original := subject(d.prefix, d.appID, env)
	headers := nats.Header{}
	headers.Set(HeaderDLQOriginalSubject, original)
	headers.Set(HeaderDLQAttempts, strconv.Itoa(attempts))
	headers.Set(HeaderDLQReason, reason)

	msg := &nats.Msg{
		Subject: DeadLetterPrefix + "." + original,
		Data:    data,
		Header:  headers,
	}
	if _, err := d.js.PublishMsg(ctx, msg, jetstream.WithMsgID(env.Key())); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	if d.metrics != nil {
		d.metrics.DLQDepth.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("kind", env.Kind),
				attribute.String("category", env.Category),
			),
		)
	}

	d.logger.Warn("envelope moved to DLQ",
		"dlq_subject", msg.Subject,
		"event_id", env.ID,
		"attempts", attempts,
		"reason", reason,
	)
	return nil
}

package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SebastienMelki/causality-media/internal/events"
)

// streamPublisher is the subset of jetstream.JetStream used to publish.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher publishes envelopes to JetStream as protobuf-encoded
// google.protobuf.Struct messages.
type Publisher struct {
	js     streamPublisher
	prefix string
	appID  string
	logger *slog.Logger
}

// NewPublisher creates a publisher. Subjects have the form
// {prefix}.{app}.{kind}.{event}.
func NewPublisher(js streamPublisher, prefix, appID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "media"
	}
	return &Publisher{
		js:     js,
		prefix: prefix,
		appID:  appID,
		logger: logger.With("component", "publisher"),
	}
}

// Publish publishes one envelope. The envelope key is used as the JetStream
// message id so the server drops redeliveries within its duplicate window.
func (p *Publisher) Publish(ctx context.Context, env events.Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	subject := p.Subject(env)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.Key()))
	if err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	p.logger.Debug("envelope published",
		"event_id", env.ID,
		"subject", subject,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate,
	)
	return nil
}

// PublishBatch publishes envs in order, continuing past failures. It returns
// the envelopes that failed and ErrPartialPublish if there were any.
func (p *Publisher) PublishBatch(ctx context.Context, envs []events.Envelope) ([]events.Envelope, error) {
	var failed []events.Envelope
	for _, env := range envs {
		if err := p.Publish(ctx, env); err != nil {
			p.logger.Error("failed to publish envelope in batch", "event_id", env.ID, "error", err)
			failed = append(failed, env)
		}
	}

	if len(failed) > 0 {
		return failed, fmt.Errorf("%w: %d of %d failed", ErrPartialPublish, len(failed), len(envs))
	}
	return nil, nil
}

// Subject derives the NATS subject of env.
func (p *Publisher) Subject(env events.Envelope) string {
	return subject(p.prefix, p.appID, env)
}

// subject builds {prefix}.{app}.{kind}.{event}. The envelope's app id wins
// over appID.
func subject(prefix, appID string, env events.Envelope) string {
	if env.AppID != "" {
		appID = env.AppID
	}
	if appID == "" {
		appID = "default"
	}
	return strings.Join([]string{
		prefix,
		events.SanitizeSubjectName(appID),
		env.Kind,
		events.SanitizeSubjectName(env.Name),
	}, ".")
}

// Encode renders env as a serialized google.protobuf.Struct. Attribute
// values that Struct cannot hold are stringified.
func Encode(env events.Envelope) ([]byte, error) {
	attrs, err := structpb.NewStruct(nil)
	if err != nil {
		return nil, err
	}
	for k, v := range env.Attributes {
		value, err := structpb.NewValue(v)
		if err != nil {
			value = structpb.NewStringValue(fmt.Sprint(v))
		}
		attrs.Fields[k] = value
	}

	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(env.ID),
		"kind":        structpb.NewStringValue(env.Kind),
		"name":        structpb.NewStringValue(env.Name),
		"category":    structpb.NewStringValue(env.Category),
		"app_id":      structpb.NewStringValue(env.AppID),
		"session_id":  structpb.NewStringValue(env.SessionID),
		"timestamp":   structpb.NewStringValue(env.Timestamp.Format(time.RFC3339Nano)),
		"sdk_version": structpb.NewStringValue(env.SDKVersion),
		"attributes":  structpb.NewStructValue(attrs),
	}}

	return proto.Marshal(msg)
}

// Decode parses a payload produced by Encode back into a map.
func Decode(data []byte) (map[string]any, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return msg.AsMap(), nil
}

package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamManager creates and updates the media stream.
type StreamManager struct {
	js     jetstream.JetStream
	config StreamConfig
	logger *slog.Logger
}

// NewStreamManager creates a stream manager.
func NewStreamManager(js jetstream.JetStream, cfg StreamConfig, logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		js:     js,
		config: cfg,
		logger: logger.With("component", "stream-manager"),
	}
}

// streamConfig converts the configuration to a JetStream stream config.
func (m *StreamManager) streamConfig() jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if strings.EqualFold(m.config.Storage, "memory") {
		storage = jetstream.MemoryStorage
	}

	return jetstream.StreamConfig{
		Name:        m.config.Name,
		Subjects:    m.config.Subjects,
		Storage:     storage,
		MaxAge:      m.config.MaxAge,
		MaxBytes:    m.config.MaxBytes,
		Replicas:    m.config.Replicas,
		Duplicates:  m.config.DuplicateWindow,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}
}

// EnsureStream creates the stream, or updates it if it already exists.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	return m.ensure(ctx, m.streamConfig())
}

// dlqStreamConfig is the dead-letter stream. It captures every "dlq.>"
// subject and keeps envelopes for DLQMaxAge.
func (m *StreamManager) dlqStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        m.config.DLQStreamName,
		Subjects:    []string{DeadLetterPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		MaxAge:      m.config.DLQMaxAge,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}
}

// EnsureDLQStream creates or updates the dead-letter stream.
func (m *StreamManager) EnsureDLQStream(ctx context.Context) (jetstream.Stream, error) {
	return m.ensure(ctx, m.dlqStreamConfig())
}

func (m *StreamManager) ensure(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if _, err := m.js.Stream(ctx, cfg.Name); err == nil {
		stream, err := m.js.UpdateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
		}
		m.logger.Info("stream updated", "name", cfg.Name)
		return stream, nil
	}

	stream, err := m.js.CreateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	m.logger.Info("stream created",
		"name", cfg.Name,
		"subjects", cfg.Subjects,
		"max_age", cfg.MaxAge,
	)
	return stream, nil
}

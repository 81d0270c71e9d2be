// Package nats publishes media envelopes to NATS JetStream.
package nats

import (
	"time"
)

// Config holds NATS connection and stream configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string `env:"URL" envDefault:"nats://localhost:4222"`

	// Name is the client connection name for monitoring
	Name string `env:"CLIENT_NAME" envDefault:"causality-media"`

	// MaxReconnects is the maximum number of reconnection attempts
	MaxReconnects int `env:"MAX_RECONNECTS" envDefault:"60"`

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration `env:"RECONNECT_WAIT" envDefault:"2s"`

	// Timeout is the connection timeout
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`

	// SubjectPrefix is the first subject token of every published envelope
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"media"`

	// Stream configuration
	Stream StreamConfig `envPrefix:"STREAM_"`
}

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	// Name is the stream name
	Name string `env:"NAME" envDefault:"CAUSALITY_MEDIA"`

	// Subjects are the subjects to capture
	Subjects []string `env:"SUBJECTS" envDefault:"media.>"`

	// MaxAge is the maximum age of messages in the stream
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"168h"` // 7 days

	// MaxBytes is the maximum size of the stream in bytes
	MaxBytes int64 `env:"MAX_BYTES" envDefault:"1073741824"` // 1GB

	// Replicas is the number of replicas for the stream
	Replicas int `env:"REPLICAS" envDefault:"1"`

	// Storage is the storage type (file or memory)
	Storage string `env:"STORAGE" envDefault:"file"`

	// DuplicateWindow is the server-side dedup window keyed on message id
	DuplicateWindow time.Duration `env:"DUPLICATE_WINDOW" envDefault:"2m"`

	// DLQStreamName is the dead-letter stream capturing "dlq.>" subjects
	DLQStreamName string `env:"DLQ_NAME" envDefault:"CAUSALITY_MEDIA_DLQ"`

	// DLQMaxAge is the retention of dead-lettered envelopes
	DLQMaxAge time.Duration `env:"DLQ_MAX_AGE" envDefault:"720h"` // 30 days
}

package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SebastienMelki/causality-media/internal/dedup"
	"github.com/SebastienMelki/causality-media/internal/observability"
	"github.com/SebastienMelki/causality-media/internal/transport"
)

// Default client configuration values.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 30 * time.Second
	DefaultTimeout       = 10 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// APIKey is the API key for authentication (required)
	APIKey string

	// Endpoint is the Causality server URL (required, e.g., "http://localhost:8080")
	Endpoint string

	// AppID is the application identifier (required)
	AppID string

	// DataPath is the SQLite file queued events are persisted to. Empty keeps
	// the queue in memory.
	DataPath string

	// MaxQueueSize bounds the queue; the oldest events are evicted when full
	// (default: 1000)
	MaxQueueSize int

	// BatchSize is the maximum number of events per batch (default: 50)
	BatchSize int

	// FlushInterval is the maximum time between flushes (default: 30s)
	FlushInterval time.Duration

	// MaxAttempts drops an event after this many failed batches (default: 10)
	MaxAttempts int

	// Timeout is the HTTP request timeout (default: 10s)
	Timeout time.Duration

	// Retry schedules retries of transient send failures (default:
	// transport.DefaultRetry)
	Retry transport.RetryStrategy

	// RequestsPerSecond caps outgoing requests; zero means unlimited
	RequestsPerSecond float64

	// Dedup configures duplicate suppression
	Dedup dedup.Config

	// DeadLetter receives events dropped after MaxAttempts; nil discards them
	DeadLetter DeadLetter

	// Metrics receives sink instruments; nil disables them
	Metrics *observability.Metrics

	// Logger is the base logger (default: slog.Default())
	Logger *slog.Logger

	// HTTPClient overrides the HTTP client
	HTTPClient *http.Client
}

// validate checks that required fields are set and values are valid.
func (c *ClientConfig) validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.AppID == "" {
		return ErrMissingAppID
	}
	if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
	}
	if c.BatchSize < 0 || c.MaxQueueSize < 0 || c.MaxAttempts < 0 {
		return errors.New("sink: BatchSize, MaxQueueSize and MaxAttempts must be non-negative")
	}
	if c.FlushInterval < 0 || c.Timeout < 0 {
		return errors.New("sink: FlushInterval and Timeout must be non-negative")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c ClientConfig) withDefaults() ClientConfig {
	cfg := c

	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")

	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = transport.DefaultRetry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return cfg
}

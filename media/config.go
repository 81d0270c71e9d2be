package media

import (
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/metric"
)

// DefaultContentCompleteLimit is the playhead percentage at which content is
// considered complete. 100 disables the threshold: only LogMediaContentEnd
// marks content complete.
const DefaultContentCompleteLimit = 100

// Config describes the content of a Session and where its events go.
type Config struct {
	// Title of the content (required).
	Title string

	// ContentID identifies the content (required).
	ContentID string

	// Duration of the content in milliseconds (optional).
	Duration *int64

	// ContentType is ContentTypeVideo, ContentTypeAudio or a custom value (required).
	ContentType string

	// StreamType is one of the StreamType constants or a custom value (required).
	StreamType string

	// Host receives forwarded events. A nil Host drops them with a warning.
	Host Host

	// LogMediaEvents forwards typed media events to the Host (default: true).
	LogMediaEvents *bool

	// LogCustomEvents forwards the flattened CustomEvent translation of every
	// event except playhead updates (default: false).
	LogCustomEvents bool

	// ContentCompleteLimit is the playhead percentage of Duration at which
	// content is marked complete (1-100, default: 100). Out of range values
	// fall back to the default.
	ContentCompleteLimit int

	// AllowMissing builds the session even when required fields are empty.
	// The problem is logged at error level instead of returned.
	AllowMissing bool

	// Logger is used for warnings and debug output (default: slog.Default()).
	Logger *slog.Logger

	// Meter creates the session's metric instruments (optional).
	Meter metric.Meter
}

// validate reports every empty required field in a single error.
func (c *Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(c.ContentID) == "" {
		missing = append(missing, "content_id")
	}
	if strings.TrimSpace(c.ContentType) == "" {
		missing = append(missing, "content_type")
	}
	if strings.TrimSpace(c.StreamType) == "" {
		missing = append(missing, "stream_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c Config) withDefaults() Config {
	cfg := c

	if cfg.LogMediaEvents == nil {
		enabled := true
		cfg.LogMediaEvents = &enabled
	}
	if cfg.ContentCompleteLimit <= 0 || cfg.ContentCompleteLimit > 100 {
		cfg.ContentCompleteLimit = DefaultContentCompleteLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Duration != nil {
		cfg.Duration = Int64(*cfg.Duration)
	}

	return cfg
}

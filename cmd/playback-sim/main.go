// Command playback-sim plays a scripted media session and forwards its events
// to the configured sinks: log, causality, nats and archive.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/SebastienMelki/causality-media/internal/dedup"
	"github.com/SebastienMelki/causality-media/internal/nats"
	"github.com/SebastienMelki/causality-media/internal/observability"
	"github.com/SebastienMelki/causality-media/internal/warehouse"
	"github.com/SebastienMelki/causality-media/media"
	"github.com/SebastienMelki/causality-media/sink"
)

// Config holds all simulator configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// MetricsAddr serves /metrics when set (e.g., ":9090")
	MetricsAddr string `env:"METRICS_ADDR"`

	// AppID is the application identifier stamped on every envelope
	AppID string `env:"APP_ID" envDefault:"playback-sim"`

	// Sinks lists the hosts events are forwarded to
	Sinks []string `env:"SINKS" envDefault:"log"`

	// Session describes the simulated content
	Session SessionConfig `envPrefix:"SESSION_"`

	// Causality configures the forwarding client
	Causality CausalityConfig `envPrefix:"CAUSALITY_"`

	// Dedup configures duplicate suppression in the forwarding client
	Dedup dedup.Config `envPrefix:"DEDUP_"`

	// NATS configuration
	NATS nats.Config `envPrefix:"NATS_"`

	// NATSMaxPending caps envelopes kept for retry while JetStream is down
	NATSMaxPending int `env:"NATS_MAX_PENDING" envDefault:"10000"`

	// Archive configuration
	Archive warehouse.Config `envPrefix:"ARCHIVE_"`

	// ArchiveCustomOnly archives only flattened custom events and summaries
	ArchiveCustomOnly bool `env:"ARCHIVE_CUSTOM_ONLY" envDefault:"true"`
}

// SessionConfig describes the simulated content.
type SessionConfig struct {
	Title                string        `env:"TITLE" envDefault:"Big Buck Bunny"`
	ContentID            string        `env:"CONTENT_ID" envDefault:"bbb-001"`
	DurationMS           int64         `env:"DURATION_MS" envDefault:"596000"`
	ContentType          string        `env:"CONTENT_TYPE" envDefault:"Video"`
	StreamType           string        `env:"STREAM_TYPE" envDefault:"OnDemand"`
	LogMediaEvents       bool          `env:"LOG_MEDIA_EVENTS" envDefault:"true"`
	LogCustomEvents      bool          `env:"LOG_CUSTOM_EVENTS" envDefault:"true"`
	ContentCompleteLimit int           `env:"CONTENT_COMPLETE_LIMIT" envDefault:"90"`
	Step                 time.Duration `env:"STEP" envDefault:"0s"`
}

// CausalityConfig configures the forwarding client.
type CausalityConfig struct {
	Endpoint          string        `env:"ENDPOINT" envDefault:"http://localhost:8080"`
	APIKey            string        `env:"API_KEY"`
	DataPath          string        `env:"DATA_PATH"`
	MaxQueueSize      int           `env:"MAX_QUEUE_SIZE" envDefault:"1000"`
	BatchSize         int           `env:"BATCH_SIZE" envDefault:"50"`
	FlushInterval     time.Duration `env:"FLUSH_INTERVAL" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"10"`
}

func main() {
	// Load configuration from environment
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting playback simulator",
		"log_level", cfg.LogLevel,
		"sinks", cfg.Sinks,
		"content_id", cfg.Session.ContentID,
	)

	// Cancel the script on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simulator failed", "error", err)
		os.Exit(1)
	}

	logger.Info("playback simulator stopped")
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	obs, err := observability.New("causality-media")
	if err != nil {
		return err
	}
	defer obs.Shutdown(context.Background())

	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, obs, metrics, logger)
		defer srv.Shutdown(context.Background())
	}

	hosts, closers, err := buildSinks(ctx, cfg, metrics, logger)
	defer func() {
		// Close in reverse order so flushes run before connections drop.
		for i := len(closers) - 1; i >= 0; i-- {
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := closers[i](closeCtx); err != nil {
				logger.Error("sink shutdown error", "error", err)
			}
			cancel()
		}
	}()
	if err != nil {
		return err
	}

	session, err := media.NewSession(media.Config{
		Title:                cfg.Session.Title,
		ContentID:            cfg.Session.ContentID,
		Duration:             media.Int64(cfg.Session.DurationMS),
		ContentType:          cfg.Session.ContentType,
		StreamType:           cfg.Session.StreamType,
		Host:                 hosts,
		LogMediaEvents:       media.Bool(cfg.Session.LogMediaEvents),
		LogCustomEvents:      cfg.Session.LogCustomEvents,
		ContentCompleteLimit: cfg.Session.ContentCompleteLimit,
		Logger:               logger,
		Meter:                obs.Meter(),
	})
	if err != nil {
		return err
	}
	session.SetListener(func(e *media.Event) {
		logger.Debug("event", "type", e.Name, "state", session.State())
	})

	script := newScript(cfg.Session.DurationMS, cfg.Session.Step)
	if err := script.run(ctx, session); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("session finished",
		"session_id", session.SessionID(),
		"content_time", session.ContentTimeSpent(),
		"ad_time", session.AdTimeSpent(),
		"content_complete", session.ContentComplete(),
	)
	return nil
}

// closer releases one sink.
type closer func(ctx context.Context) error

// buildSinks creates the hosts named in cfg.Sinks. The returned closers must
// run even when an error is returned. When NATS is enabled, events the
// forwarding client gives up on are dead-lettered to JetStream.
func buildSinks(ctx context.Context, cfg Config, metrics *observability.Metrics, logger *slog.Logger) (sink.Multi, []closer, error) {
	var (
		hosts      sink.Multi
		closers    []closer
		deadLetter sink.DeadLetter
	)

	if slices.Contains(cfg.Sinks, "log") {
		hosts = append(hosts, sink.NewLog(logger, slog.LevelInfo))
	}

	if slices.Contains(cfg.Sinks, "nats") {
		natsClient, err := nats.NewClient(ctx, cfg.NATS, logger)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func(context.Context) error { return natsClient.Drain() })

		streamMgr := nats.NewStreamManager(natsClient.JetStream(), cfg.NATS.Stream, logger)
		if _, err := streamMgr.EnsureStream(ctx); err != nil {
			return nil, closers, err
		}
		if _, err := streamMgr.EnsureDLQStream(ctx); err != nil {
			return nil, closers, err
		}
		deadLetter = natsClient.DeadLetterPublisher(cfg.AppID, metrics)

		host := sink.NewNATS(natsClient.Publisher(cfg.AppID), cfg.AppID, metrics, logger)
		host.SetMaxPending(cfg.NATSMaxPending)
		hosts = append(hosts, host)
		closers = append(closers, host.Flush)
	}

	if slices.Contains(cfg.Sinks, "causality") {
		client, err := sink.NewClient(ctx, sink.ClientConfig{
			APIKey:            cfg.Causality.APIKey,
			Endpoint:          cfg.Causality.Endpoint,
			AppID:             cfg.AppID,
			DataPath:          cfg.Causality.DataPath,
			MaxQueueSize:      cfg.Causality.MaxQueueSize,
			BatchSize:         cfg.Causality.BatchSize,
			FlushInterval:     cfg.Causality.FlushInterval,
			RequestsPerSecond: cfg.Causality.RequestsPerSecond,
			Dedup:             cfg.Dedup,
			DeadLetter:        deadLetter,
			Metrics:           metrics,
			Logger:            logger,
		})
		if err != nil {
			return nil, closers, err
		}
		hosts = append(hosts, client)
		closers = append(closers, client.Close)
	}

	if slices.Contains(cfg.Sinks, "archive") {
		s3Client, err := warehouse.NewS3Client(ctx, cfg.Archive.S3, logger)
		if err != nil {
			return nil, closers, err
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, closers, err
		}

		archive := warehouse.NewArchive(s3Client, cfg.Archive, metrics, logger)
		archive.Start(ctx)
		closers = append(closers, archive.Close)
		hosts = append(hosts, sink.NewArchive(archive, cfg.AppID, cfg.ArchiveCustomOnly, logger))

		if cfg.Archive.Compaction.Enabled {
			compactor := warehouse.NewCompactor(s3Client, cfg.Archive, metrics, logger)
			compactor.Start(ctx)
			closers = append(closers, func(context.Context) error {
				compactor.Stop()
				return nil
			})
		}
	}

	return hosts, closers, nil
}

// startMetricsServer serves /metrics in the background.
func startMetricsServer(addr string, obs *observability.Module, metrics *observability.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HTTPMetrics(metrics, "metrics")(obs.MetricsHandler()))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Package dedup drops media envelopes whose key was already seen within a
// sliding time window. It backs the forwarding client so that an event handed
// to the host twice is delivered once.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SebastienMelki/causality-media/internal/observability"
)

// Config holds the dedup configuration.
//
// Environment variable overrides:
//   - DEDUP_WINDOW:   sliding window duration (default: 10m)
//   - DEDUP_CAPACITY: expected keys per window (default: 100000)
//   - DEDUP_FP_RATE:  bloom filter false positive rate (default: 0.0001)
type Config struct {
	Window   time.Duration `env:"WINDOW"   envDefault:"10m"`
	Capacity uint          `env:"CAPACITY" envDefault:"100000"`
	FPRate   float64       `env:"FP_RATE"  envDefault:"0.0001"`
}

// MinWindow is the shortest window New accepts.
const MinWindow = time.Second

// DefaultConfig returns a 10 minute window sized for 100k keys at a 0.01%
// false positive rate.
func DefaultConfig() Config {
	return Config{
		Window:   10 * time.Minute,
		Capacity: 100_000,
		FPRate:   0.0001,
	}
}

// Filter reports duplicate keys. It is safe for concurrent use.
type Filter struct {
	set     *filterSet
	metrics *observability.Metrics
	logger  *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Filter. metrics may be nil. Windows shorter than MinWindow
// are raised to it.
func New(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Filter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Window < MinWindow {
		cfg.Window = MinWindow
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.FPRate <= 0 || cfg.FPRate >= 1 {
		cfg.FPRate = def.FPRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Filter{
		set:     newFilterSet(cfg.Window, cfg.Capacity, cfg.FPRate),
		metrics: metrics,
		logger:  logger.With("component", "dedup"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// IsDuplicate reports whether key was seen within the window and records it
// otherwise. Empty keys are never duplicates.
func (f *Filter) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	if !f.set.testAndAdd(key) {
		return false
	}

	if f.metrics != nil {
		f.metrics.DedupDropped.Add(context.Background(), 1)
	}
	f.logger.Debug("duplicate envelope dropped", "key", key)
	return true
}

// Start rotates the filter every window/2 until ctx is done or Stop is
// called.
func (f *Filter) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		go f.rotateLoop(ctx)
	})
}

func (f *Filter) rotateLoop(ctx context.Context) {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.set.window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.set.rotate()
			f.logger.Debug("bloom filter rotated")
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		}
	}
}

// Stop ends the rotation loop and waits for it. It is a no-op if Start was
// never called.
func (f *Filter) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})

	started := true
	f.startOnce.Do(func() { started = false })
	if started {
		<-f.doneCh
	}
}

// Package sink provides media.Host implementations: an in-memory recorder, a
// fan-out, a structured logger, and forwarders to the Causality ingestion
// endpoint, NATS JetStream and a Parquet archive on S3.
package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/SebastienMelki/causality-media/media"
)

// Recorder is an in-memory Host. It records both kinds of event in arrival
// order and is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	media  []*media.Event
	custom []*media.CustomEvent
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// LogMediaEvent implements media.Host.
func (r *Recorder) LogMediaEvent(event *media.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media = append(r.media, event)
}

// LogCustomEvent implements media.Host.
func (r *Recorder) LogCustomEvent(event *media.CustomEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append(r.custom, event)
}

// MediaEvents returns the recorded media events.
func (r *Recorder) MediaEvents() []*media.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*media.Event(nil), r.media...)
}

// CustomEvents returns the recorded custom events.
func (r *Recorder) CustomEvents() []*media.CustomEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*media.CustomEvent(nil), r.custom...)
}

// CustomEventsNamed returns the recorded custom events called name.
func (r *Recorder) CustomEventsNamed(name string) []*media.CustomEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*media.CustomEvent
	for _, e := range r.custom {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media = nil
	r.custom = nil
}

// Multi forwards every event to each host in order. Nil hosts are skipped.
type Multi []media.Host

// LogMediaEvent implements media.Host.
func (m Multi) LogMediaEvent(event *media.Event) {
	for _, h := range m {
		if h != nil {
			h.LogMediaEvent(event)
		}
	}
}

// LogCustomEvent implements media.Host.
func (m Multi) LogCustomEvent(event *media.CustomEvent) {
	for _, h := range m {
		if h != nil {
			h.LogCustomEvent(event)
		}
	}
}

// Log writes every event to a slog.Logger.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog creates a Log host writing at level. A nil logger uses
// slog.Default().
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger: logger.With("component", "media-log"),
		level:  level,
	}
}

// LogMediaEvent implements media.Host.
func (l *Log) LogMediaEvent(event *media.Event) {
	l.logger.Log(context.Background(), l.level, "media event",
		"event_id", event.ID,
		"type", event.Name,
		"event", event.String(),
	)
}

// LogCustomEvent implements media.Host.
func (l *Log) LogCustomEvent(event *media.CustomEvent) {
	l.logger.Log(context.Background(), l.level, "custom event",
		"event_id", event.ID,
		"name", event.Name,
		"attributes", event.Attributes,
	)
}

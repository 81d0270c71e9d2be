package sink

import (
	"context"
	"log/slog"

	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/media"
)

// EnvelopeArchiver buffers envelopes for archival. *warehouse.Archive
// implements it.
type EnvelopeArchiver interface {
	Add(ctx context.Context, env events.Envelope) error
	Flush(ctx context.Context) error
}

// Archive is a media.Host that archives events as Parquet rows. With
// CustomOnly set, typed media events are skipped and only the flattened
// custom events (including summaries) are kept.
type Archive struct {
	archiver   EnvelopeArchiver
	appID      string
	customOnly bool
	logger     *slog.Logger
}

// NewArchive creates an Archive host.
func NewArchive(archiver EnvelopeArchiver, appID string, customOnly bool, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		archiver:   archiver,
		appID:      appID,
		customOnly: customOnly,
		logger:     logger.With("component", "sink-archive"),
	}
}

// LogMediaEvent implements media.Host.
func (a *Archive) LogMediaEvent(event *media.Event) {
	if a.customOnly {
		return
	}
	a.add(events.FromMediaEvent(a.appID, event))
}

// LogCustomEvent implements media.Host.
func (a *Archive) LogCustomEvent(event *media.CustomEvent) {
	a.add(events.FromCustomEvent(a.appID, event))
}

func (a *Archive) add(env events.Envelope) {
	if err := a.archiver.Add(context.Background(), env); err != nil {
		a.logger.Warn("failed to archive event",
			"event_id", env.ID,
			"name", env.Name,
			"error", err,
		)
	}
}

// Flush writes buffered rows.
func (a *Archive) Flush(ctx context.Context) error {
	return a.archiver.Flush(ctx)
}

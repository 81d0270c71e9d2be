package media

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// instruments holds the metric instruments of a Session.
type instruments struct {
	eventsLogged  metric.Int64Counter
	customEvents  metric.Int64Counter
	summaries     metric.Int64Counter
	eventsDropped metric.Int64Counter
}

// newInstruments creates the session instruments from meter. A nil meter
// yields no-op instruments.
func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("media")
	}

	var m instruments
	var err error

	m.eventsLogged, err = meter.Int64Counter(
		"media.events.logged",
		metric.WithDescription("Media events built by sessions"),
	)
	if err != nil {
		return nil, err
	}

	m.customEvents, err = meter.Int64Counter(
		"media.custom_events.forwarded",
		metric.WithDescription("Media events forwarded to the host as custom events"),
	)
	if err != nil {
		return nil, err
	}

	m.summaries, err = meter.Int64Counter(
		"media.summaries.emitted",
		metric.WithDescription("Session, ad and segment summaries emitted"),
	)
	if err != nil {
		return nil, err
	}

	m.eventsDropped, err = meter.Int64Counter(
		"media.events.dropped",
		metric.WithDescription("Events dropped because no host was configured"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *instruments) add(counter metric.Int64Counter, name string) {
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", name)))
}

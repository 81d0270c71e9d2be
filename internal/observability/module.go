// Package observability provides OpenTelemetry metrics with a Prometheus
// exporter for the media sinks and the playback simulator.
package observability

import (
	"context"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Module owns the MeterProvider and the Prometheus registry it exports to.
type Module struct {
	provider *sdkmetric.MeterProvider
	meter    otelmetric.Meter
	registry *prom.Registry
}

// New creates a Module exporting to a dedicated Prometheus registry and
// installs its MeterProvider as the global OTel provider. serviceName is
// the meter scope name.
func New(serviceName string) (*Module, error) {
	registry := prom.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return &Module{
		provider: provider,
		meter:    provider.Meter(serviceName),
		registry: registry,
	}, nil
}

// Shutdown flushes and stops the MeterProvider.
func (m *Module) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// MetricsHandler serves the registry in the Prometheus exposition format.
// Mount it at "/metrics".
func (m *Module) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Meter returns the Meter for creating instruments.
func (m *Module) Meter() otelmetric.Meter {
	return m.meter
}

// Package telemetry wires OpenTelemetry metrics to a Prometheus endpoint.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metrics holds the instruments recorded by the API middleware.
type Metrics struct {
	Requests        metric.Int64Counter
	ErrorCount      metric.Int64Counter
	RequestDuration metric.Float64Histogram

	registry *prometheus.Registry
}

// PrometheusHandler serves the /metrics scrape endpoint.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InitMetrics sets up the meter provider with a Prometheus exporter and
// creates the request instruments. The returned function shuts the provider
// down.
func InitMetrics(version string) (func(context.Context) error, *Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("contract-hub"),
		semconv.ServiceVersion(version),
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	meter := provider.Meter("contract-hub/api")

	requests, err := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	errorCount, err := meter.Int64Counter("http_request_errors_total",
		metric.WithDescription("Total number of HTTP requests that returned an error status"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	metrics := &Metrics{
		Requests:        requests,
		ErrorCount:      errorCount,
		RequestDuration: requestDuration,
		registry:        registry,
	}

	return provider.Shutdown, metrics, nil
}

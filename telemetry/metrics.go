package telemetry

import (
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the counting-engine metric set.
type Metrics struct {
	QueriesIssued metric.Int64Counter
	QueryFailures metric.Int64Counter
	ScopesScanned metric.Int64Counter
	ScopesSkipped metric.Int64Counter
	ScanDuration  metric.Float64Histogram
}

// SetupPrometheus wires the global OTEL meter provider to a dedicated
// Prometheus registry and returns the registry for scraping.
func SetupPrometheus() (*promclient.Registry, error) {
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return registry, nil
}

// InitMetrics registers the engine metric set on the given meter.
func InitMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.QueriesIssued, err = meter.Int64Counter(
		"cloudtally.queries.total",
		metric.WithDescription("Total provider count queries issued"),
		metric.WithUnit("queries"),
	)
	if err != nil {
		return nil, err
	}

	m.QueryFailures, err = meter.Int64Counter(
		"cloudtally.query.failures.total",
		metric.WithDescription("Count queries that exhausted all retries"),
		metric.WithUnit("failures"),
	)
	if err != nil {
		return nil, err
	}

	m.ScopesScanned, err = meter.Int64Counter(
		"cloudtally.scopes.scanned.total",
		metric.WithDescription("Scopes scanned to completion"),
		metric.WithUnit("scopes"),
	)
	if err != nil {
		return nil, err
	}

	m.ScopesSkipped, err = meter.Int64Counter(
		"cloudtally.scopes.skipped.total",
		metric.WithDescription("Scopes skipped after activation failure"),
		metric.WithUnit("scopes"),
	)
	if err != nil {
		return nil, err
	}

	m.ScanDuration, err = meter.Float64Histogram(
		"cloudtally.scan.duration",
		metric.WithDescription("End-to-end scan duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

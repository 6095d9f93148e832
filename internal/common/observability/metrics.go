package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records discovery-run telemetry through an OpenTelemetry
// meter exported to Prometheus.
type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	runCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
	candidateGauge otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"discovery.runs",
		otelmetric.WithDescription("Number of discovery runs"),
	)

	runDuration, _ := meter.Float64Histogram(
		"discovery.duration",
		otelmetric.WithDescription("Discovery run duration"),
		otelmetric.WithUnit("ms"),
	)

	candidateGauge, _ := meter.Int64Counter(
		"discovery.candidates",
		otelmetric.WithDescription("Candidates processed across runs"),
	)

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		runCounter:     runCounter,
		runDuration:    runDuration,
		candidateGauge: candidateGauge,
	}
}

// RecordRun records one completed discovery run.
func (o *Observability) RecordRun(ctx context.Context, outcome string, duration time.Duration, candidates int) {
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if o.candidateGauge != nil {
		o.candidateGauge.Add(ctx, int64(candidates), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}

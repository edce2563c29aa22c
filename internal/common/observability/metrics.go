package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records scheduler tick telemetry through an OpenTelemetry meter exported to Prometheus.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	tickCounter   otelmetric.Int64Counter
	tickDuration  otelmetric.Float64Histogram
	rulesDue      otelmetric.Int64Histogram
}

// New returns a usable Observability even when the exporter fails; recording becomes a no-op.
func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	tickCounter, _ := meter.Int64Counter(
		"scheduler.ticks",
		otelmetric.WithDescription("Monitoring scheduler ticks"),
	)
	tickDuration, _ := meter.Float64Histogram(
		"scheduler.tick.duration",
		otelmetric.WithDescription("Monitoring scheduler tick duration"),
		otelmetric.WithUnit("ms"),
	)
	rulesDue, _ := meter.Int64Histogram(
		"scheduler.rules.due",
		otelmetric.WithDescription("Rules due per tick"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		tickCounter:   tickCounter,
		tickDuration:  tickDuration,
		rulesDue:      rulesDue,
	}
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordTick(ctx context.Context, duration time.Duration, due int, status string) {
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if o.tickCounter != nil {
		o.tickCounter.Add(ctx, 1, attrs)
	}
	if o.tickDuration != nil {
		o.tickDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if o.rulesDue != nil {
		o.rulesDue.Record(ctx, int64(due))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}

package parse

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeApplied   = "applied"
	outcomeDiscarded = "discarded"
	outcomeFailed    = "failed"
)

type metrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(provider metric.MeterProvider) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("unimozer/parse")
	m := &metrics{}
	var err error
	if m.runs, err = meter.Int64Counter(
		"parse_runs_total",
		metric.WithDescription("Parser invocations by outcome"),
	); err != nil {
		otel.Handle(err)
	}
	if m.duration, err = meter.Float64Histogram(
		"parse_duration_seconds",
		metric.WithDescription("Duration of parser invocations"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *metrics) record(ctx context.Context, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, took.Seconds(), attrs)
	}
}

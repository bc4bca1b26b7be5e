package archive

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	flushes metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := &metrics{}
	var err error
	if m.flushes, err = provider.Meter("unimozer/archive").Int64Counter(
		"archive_flushes_total",
		metric.WithDescription("Packed archive writes by outcome"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *metrics) record(ctx context.Context, outcome string) {
	if m == nil || m.flushes == nil {
		return
	}
	m.flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

package mirror

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	notifications metric.Int64Counter
	dropped       metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("unimozer/mirror")
	m := &metrics{}
	var err error
	if m.notifications, err = meter.Int64Counter(
		"mirror_notifications_total",
		metric.WithDescription("Document notifications sent to the language server by method"),
	); err != nil {
		otel.Handle(err)
	}
	if m.dropped, err = meter.Int64Counter(
		"mirror_diagnostics_dropped_total",
		metric.WithDescription("Diagnostics publications identical to the last applied set"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *metrics) sent(method string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Add(context.Background(), 1, metric.WithAttributes(attribute.String("method", method)))
}

func (m *metrics) duplicate() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Add(context.Background(), 1)
}

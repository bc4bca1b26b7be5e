package archive

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFlushesCountedByOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	var n atomic.Int32
	q := NewQueue(Options{
		Meter: provider,
		Writer: WriterFunc(func(context.Context, string, string) error {
			if n.Add(1) == 1 {
				return errors.New("disk full")
			}
			return nil
		}),
	})

	q.Request("/p", "/out/P.umz")
	require.Error(t, await(t, q))
	q.Request("/p", "/out/P.umz")
	require.NoError(t, await(t, q))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "archive_flushes_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"failed": 1, "ok": 1}, counts)
}

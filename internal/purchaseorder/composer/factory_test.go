package composer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
)

func openSessions(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "po_composer_sessions_open" {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok)
			require.Len(t, gauge.DataPoints, 1)
			return gauge.DataPoints[0].Value
		}
	}
	t.Fatalf("po_composer_sessions_open not reported")
	return 0
}

func TestFactory_ReportsOpenSessions(t *testing.T) {
	h := newHarness(t)
	reader := sdkmetric.NewManualReader()
	m, err := metrics.New(metrics.Config{ServiceName: "test"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	f := NewFactory(Params{
		Config:    config.NewStaticComposerConfigHolder(config.DefaultComposerConfig()),
		Authority: h.authority,
		Drafts:    h.drafts,
		Clock:     h.clock,
		Log:       zap.NewNop(),
		Metrics:   m,
	})
	assert.Equal(t, int64(0), openSessions(t, reader))

	first, err := f.New("store-1", nil)
	require.NoError(t, err)
	_, err = f.New("store-2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), openSessions(t, reader))

	first.Close()
	assert.Equal(t, int64(1), openSessions(t, reader))

	f.CloseAll()
	assert.Equal(t, int64(0), openSessions(t, reader))
}

package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// sumFor adds up the int64 sum data points of the named instrument recorded
// for oracle name and outcome.
func sumFor(rm metricdata.ResourceMetrics, instrument, name, outcome string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != instrument {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				n, _ := dp.Attributes.Value("oracle.name")
				o, _ := dp.Attributes.Value("outcome")
				if n.AsString() == name && o.AsString() == outcome {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestGuard_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	var calls int32
	embedder := EmbedFunc(func(ctx context.Context, text string) ([]float32, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, Unavailable("embed", true, errors.New("status 503"))
		}
		return []float32{1}, nil
	})
	guard := fastGuard(GuardConfig{Name: "metered", MaxRetries: 2})
	_, err := guard.Embedder(embedder).Embed(context.Background(), "hello")
	require.NoError(t, err)

	failing := guard.Generator(GenerateFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("bad request")
	}))
	_, err = failing.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.EqualValues(t, 1, sumFor(rm, "oracle.calls", "metered", outcomeOK))
	assert.EqualValues(t, 2, sumFor(rm, "oracle.attempts", "metered", outcomeOK))
	assert.EqualValues(t, 1, sumFor(rm, "oracle.calls", "metered", outcomeError))
}

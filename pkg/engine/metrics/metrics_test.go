package metrics

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
)

func TestNewProvider_RegistersCollectors(t *testing.T) {
	p, err := NewProvider()
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.Prometheus.RegisteredRunners.WithLabelValues("LLM").Set(2)
	metricFamilies, err := p.Registry.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "engine_registered_runners" {
			found = true
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, float64(2), mf.Metric[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestOTelMetrics_RecordRequestIncrementsCounter(t *testing.T) {
	p, err := NewProvider()
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.OTel.RecordRequest(context.Background(), engine.CapabilityLLM, "success")
	// The OTel counter is read back through the Prometheus bridge registry.
	metricFamilies, err := p.Registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range metricFamilies {
		if mf.GetName() == "engine_requests_total" {
			for _, m := range mf.Metric {
				total += counterValue(m)
			}
		}
	}
	assert.Equal(t, float64(1), total)
}

func counterValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

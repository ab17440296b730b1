// Package metrics instruments the engine runtime with both a direct
// Prometheus collector set and an OpenTelemetry metrics bridge over the
// same registry.
//
// Grounded on the glyphoxa example repo's internal/observe package
// (NewMetrics building typed OTel instruments off a metric.MeterProvider,
// InitProvider wiring a Prometheus exporter reader into the OTel SDK's
// MeterProvider so the same data is scrapeable at /metrics), adapted from
// glyphoxa's voice-pipeline instrument set (STT/LLM/TTS durations) to the
// engine's own: active request count, per-capability totals, and
// load/reload counters. The direct prometheus/client_golang collectors
// (registered runner count, by-capability gauges) are additionally
// registered on the same registry, exercising client_golang's native API
// alongside the OTel bridge rather than only through it.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/edgerunner/engine/pkg/engine"
)

const meterName = "github.com/edgerunner/engine"

// OTelMetrics holds the OpenTelemetry instruments the coordinator, manager,
// and reload manager record against.
type OTelMetrics struct {
	ActiveRequests metric.Int64UpDownCounter
	RequestsTotal  metric.Int64Counter
	LoadTotal      metric.Int64Counter
	ReloadTotal    metric.Int64Counter
}

// NewOTelMetrics creates the instrument set against mp.
func NewOTelMetrics(mp metric.MeterProvider) (*OTelMetrics, error) {
	m := mp.Meter(meterName)
	om := &OTelMetrics{}
	var err error

	if om.ActiveRequests, err = m.Int64UpDownCounter("engine.active_requests",
		metric.WithDescription("Number of requests currently being processed.")); err != nil {
		return nil, err
	}
	if om.RequestsTotal, err = m.Int64Counter("engine.requests_total",
		metric.WithDescription("Total requests processed, by capability and outcome.")); err != nil {
		return nil, err
	}
	if om.LoadTotal, err = m.Int64Counter("engine.load_total",
		metric.WithDescription("Total runner load attempts, by runner and outcome.")); err != nil {
		return nil, err
	}
	if om.ReloadTotal, err = m.Int64Counter("engine.reload_total",
		metric.WithDescription("Total settings-triggered reloads, by runner and outcome.")); err != nil {
		return nil, err
	}
	return om, nil
}

// RecordRequest records the completion of one request. A nil receiver is a
// no-op, so callers built in tests without a metrics provider need not guard
// every call site.
func (m *OTelMetrics) RecordRequest(ctx context.Context, capability engine.Capability, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", string(capability)),
		attribute.String("outcome", outcome),
	))
}

// EnterRequest and ExitRequest bracket one in-flight request against
// ActiveRequests, mirroring the coordinator's own active_count bookkeeping.
// Nil-safe.
func (m *OTelMetrics) EnterRequest(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveRequests.Add(ctx, 1)
}

func (m *OTelMetrics) ExitRequest(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveRequests.Add(ctx, -1)
}

// RecordLoad records the outcome of one runner load attempt. Nil-safe.
func (m *OTelMetrics) RecordLoad(ctx context.Context, runner, outcome string) {
	if m == nil {
		return
	}
	m.LoadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("runner", runner),
		attribute.String("outcome", outcome),
	))
}

// RecordReload records the outcome of one reload. Nil-safe.
func (m *OTelMetrics) RecordReload(ctx context.Context, runner, outcome string) {
	if m == nil {
		return
	}
	m.ReloadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("runner", runner),
		attribute.String("outcome", outcome),
	))
}

// PromCollectors are the native prometheus/client_golang instruments,
// registered onto the same *prometheus.Registry the OTel bridge reads from.
type PromCollectors struct {
	RegisteredRunners *prometheus.GaugeVec
	DiscoverySkipped  prometheus.Counter
}

// NewPromCollectors constructs and registers the collector set on reg.
func NewPromCollectors(reg *prometheus.Registry) *PromCollectors {
	pc := &PromCollectors{
		RegisteredRunners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_registered_runners",
			Help: "Number of runners currently registered, by capability.",
		}, []string{"capability"}),
		DiscoverySkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_discovery_skipped_total",
			Help: "Total catalog entries skipped during discovery (disabled, unsupported on this host, failed to construct, or refused by the registry).",
		}),
	}
	reg.MustRegister(pc.RegisteredRunners, pc.DiscoverySkipped)
	return pc
}

// IncDiscoverySkipped records one catalog entry skipped during discovery.
// Nil-safe, so a Discoverer built without a metrics provider need not guard
// the call site.
func (p *PromCollectors) IncDiscoverySkipped() {
	if p == nil {
		return
	}
	p.DiscoverySkipped.Inc()
}

// Provider bundles the Prometheus registry, its native collectors, and the
// OTel bridge reading from it.
type Provider struct {
	Registry   *prometheus.Registry
	Prometheus *PromCollectors
	OTel       *OTelMetrics

	meterProvider *sdkmetric.MeterProvider
}

// NewProvider wires a fresh Prometheus registry, registers the native
// collectors on it, and bridges an OTel MeterProvider through a Prometheus
// exporter reader backed by the same registry, then installs it as the
// global OTel meter provider.
func NewProvider() (*Provider, error) {
	reg := prometheus.NewRegistry()
	promCollectors := NewPromCollectors(reg)

	exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	otelMetrics, err := NewOTelMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Registry:      reg,
		Prometheus:    promCollectors,
		OTel:          otelMetrics,
		meterProvider: mp,
	}, nil
}

// Shutdown flushes and releases the underlying OTel MeterProvider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

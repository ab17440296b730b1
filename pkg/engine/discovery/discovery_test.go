package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/registry"
	"github.com/edgerunner/engine/pkg/logging"
)

type stubRunner struct {
	caps []engine.Capability
}

func (s *stubRunner) Capabilities() []engine.Capability { return s.caps }
func (s *stubRunner) IsLoaded() bool                    { return false }
func (s *stubRunner) LoadedModelID() string             { return "" }
func (s *stubRunner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	return true, nil
}
func (s *stubRunner) Unload(ctx context.Context) error { return nil }
func (s *stubRunner) ParameterSchema() []engine.ParameterSchema {
	return nil
}
func (s *stubRunner) ValidateParameters(params map[string]any) engine.ValidationResult {
	return engine.Valid()
}
func (s *stubRunner) Run(ctx context.Context, request engine.Request) engine.Result {
	return engine.Result{}
}
func (s *stubRunner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	return nil, engine.ErrStreamingUnsupported
}

func newTestDiscoverer(catalog []CatalogEntry) (*Discoverer, *registry.Registry) {
	log := logging.NewLogrusAdapter(logrus.New())
	reg := registry.New(log)
	return New(log, reg, catalog, nil), reg
}

func TestHostProbe_Supports(t *testing.T) {
	probe := HostProbe{TotalRAM: 10 << 30, TotalStorage: 100 << 30, CPUCores: 4, HasNPU: true}

	assert.True(t, probe.Supports(engine.HardwareMTKNPU))
	assert.True(t, probe.Supports(engine.HardwareHighMemory))
	assert.True(t, probe.Supports(engine.HardwareMediumMemory))
	assert.True(t, probe.Supports(engine.HardwareLowMemory))
	assert.True(t, probe.Supports(engine.HardwareLargeStorage))
	assert.True(t, probe.Supports(engine.HardwareCPU))
	assert.False(t, probe.Supports(engine.HardwareMicrophone))
	assert.False(t, probe.Supports(engine.HardwareInternet))
}

func TestHostProbe_MemoryTiersAreMonotonic(t *testing.T) {
	low := HostProbe{TotalRAM: 1 << 30}
	assert.True(t, low.Supports(engine.HardwareLowMemory))
	assert.False(t, low.Supports(engine.HardwareMediumMemory))
	assert.False(t, low.Supports(engine.HardwareHighMemory))
}

func TestIsSupported_AllRequirementsMustHold(t *testing.T) {
	probe := HostProbe{TotalRAM: 10 << 30, HasNPU: true}
	d := engine.RunnerDescriptor{
		HardwareRequirements: []engine.HardwareRequirement{engine.HardwareMTKNPU, engine.HardwareInternet},
	}
	assert.False(t, IsSupported(probe, d))

	d.HardwareRequirements = []engine.HardwareRequirement{engine.HardwareMTKNPU, engine.HardwareHighMemory}
	assert.True(t, IsSupported(probe, d))
}

func TestIsSupported_NoRequirementsAlwaysTrue(t *testing.T) {
	assert.True(t, IsSupported(HostProbe{}, engine.RunnerDescriptor{}))
}

func TestRun_SkipsDisabledAndUnsupported(t *testing.T) {
	catalog := []CatalogEntry{
		{
			Descriptor: engine.RunnerDescriptor{Name: "disabled", Enabled: false, Capabilities: []engine.Capability{engine.CapabilityLLM}},
			Factory:    func() (engine.Runner, error) { return &stubRunner{caps: []engine.Capability{engine.CapabilityLLM}}, nil },
		},
		{
			Descriptor: engine.RunnerDescriptor{
				Name: "needs-npu", Enabled: true, Capabilities: []engine.Capability{engine.CapabilityLLM},
				HardwareRequirements: []engine.HardwareRequirement{engine.HardwareMTKNPU},
			},
			Factory: func() (engine.Runner, error) { return &stubRunner{caps: []engine.Capability{engine.CapabilityLLM}}, nil },
		},
		{
			Descriptor: engine.RunnerDescriptor{Name: "ok", Enabled: true, Capabilities: []engine.Capability{engine.CapabilityLLM}},
			Factory:    func() (engine.Runner, error) { return &stubRunner{caps: []engine.Capability{engine.CapabilityLLM}}, nil },
		},
	}
	disc, reg := newTestDiscoverer(catalog)

	registered, skipped := disc.Run(context.Background(), HostProbe{})
	require.Equal(t, 1, registered)
	require.Equal(t, 2, skipped)

	_, _, ok := reg.GetByName("ok")
	assert.True(t, ok)
	_, _, ok = reg.GetByName("disabled")
	assert.False(t, ok)
	_, _, ok = reg.GetByName("needs-npu")
	assert.False(t, ok)
}

func TestRun_FactoryErrorSkipsWithoutAbortingPass(t *testing.T) {
	catalog := []CatalogEntry{
		{
			Descriptor: engine.RunnerDescriptor{Name: "broken", Enabled: true, Capabilities: []engine.Capability{engine.CapabilityASR}},
			Factory:    func() (engine.Runner, error) { return nil, errors.New("construction failed") },
		},
		{
			Descriptor: engine.RunnerDescriptor{Name: "fine", Enabled: true, Capabilities: []engine.Capability{engine.CapabilityASR}},
			Factory:    func() (engine.Runner, error) { return &stubRunner{caps: []engine.Capability{engine.CapabilityASR}}, nil },
		},
	}
	disc, reg := newTestDiscoverer(catalog)

	registered, skipped := disc.Run(context.Background(), HostProbe{})
	assert.Equal(t, 1, registered)
	assert.Equal(t, 1, skipped)
	_, _, ok := reg.GetByName("fine")
	assert.True(t, ok)
}

func TestReinitialize_ClearsPreviousRegistrations(t *testing.T) {
	catalog := []CatalogEntry{
		{
			Descriptor: engine.RunnerDescriptor{Name: "r1", Enabled: true, Capabilities: []engine.Capability{engine.CapabilityLLM}},
			Factory:    func() (engine.Runner, error) { return &stubRunner{caps: []engine.Capability{engine.CapabilityLLM}}, nil },
		},
	}
	disc, reg := newTestDiscoverer(catalog)
	disc.Run(context.Background(), HostProbe{})
	require.Len(t, reg.GetAll(), 1)

	registered, skipped, err := disc.Reinitialize(context.Background(), HostProbe{})
	require.NoError(t, err)
	assert.Equal(t, 1, registered)
	assert.Equal(t, 0, skipped)
	assert.Len(t, reg.GetAll(), 1)
}

func TestReinitialize_AbortsOnCancelledContext(t *testing.T) {
	disc, _ := newTestDiscoverer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := disc.Reinitialize(ctx, HostProbe{})
	assert.Error(t, err)
}

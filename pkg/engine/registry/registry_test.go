package registry

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/logging"
)

type fakeRunner struct {
	unloaded bool
	caps     []engine.Capability
}

func (f *fakeRunner) Capabilities() []engine.Capability { return f.caps }
func (f *fakeRunner) IsLoaded() bool                    { return false }
func (f *fakeRunner) LoadedModelID() string             { return "" }
func (f *fakeRunner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	return true, nil
}
func (f *fakeRunner) Unload(ctx context.Context) error {
	f.unloaded = true
	return nil
}
func (f *fakeRunner) ParameterSchema() []engine.ParameterSchema { return nil }
func (f *fakeRunner) ValidateParameters(params map[string]any) engine.ValidationResult {
	return engine.Valid()
}
func (f *fakeRunner) Run(ctx context.Context, request engine.Request) engine.Result {
	return engine.Result{}
}
func (f *fakeRunner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	return nil, nil
}

func newTestRegistry() *Registry {
	return New(logging.NewLogrusAdapter(logrus.New()))
}

func descriptor(name string, caps ...engine.Capability) engine.RunnerDescriptor {
	return engine.RunnerDescriptor{Name: name, Capabilities: caps}
}

// runnerFor builds a fakeRunner whose advertised capabilities match caps
// exactly, satisfying Register's superset check against a descriptor built
// with the same caps.
func runnerFor(caps ...engine.Capability) *fakeRunner {
	return &fakeRunner{caps: caps}
}

func TestRegister_GetByName(t *testing.T) {
	r := newTestRegistry()
	runner := runnerFor(engine.CapabilityLLM)
	require.True(t, r.Register(runner, descriptor("a", engine.CapabilityLLM)))

	got, desc, ok := r.GetByName("a")
	require.True(t, ok)
	assert.Equal(t, runner, got)
	assert.Equal(t, "a", desc.Name)
}

func TestRegister_DuplicateNameOverwrites(t *testing.T) {
	r := newTestRegistry()
	first := runnerFor(engine.CapabilityLLM)
	second := runnerFor(engine.CapabilityLLM)
	r.Register(first, descriptor("a", engine.CapabilityLLM))
	r.Register(second, descriptor("a", engine.CapabilityLLM))

	got, _, ok := r.GetByName("a")
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestRegister_RejectsInstanceMissingDescriptorCapability(t *testing.T) {
	r := newTestRegistry()
	runner := runnerFor(engine.CapabilityASR)

	ok := r.Register(runner, descriptor("a", engine.CapabilityLLM, engine.CapabilityASR))

	assert.False(t, ok)
	_, _, found := r.GetByName("a")
	assert.False(t, found)
	assert.Empty(t, r.GetAllByCapability(engine.CapabilityLLM))
}

func TestRegister_AcceptsInstanceWithExtraCapabilities(t *testing.T) {
	r := newTestRegistry()
	runner := runnerFor(engine.CapabilityLLM, engine.CapabilityVLM)

	ok := r.Register(runner, descriptor("a", engine.CapabilityLLM))

	assert.True(t, ok)
	_, _, found := r.GetByName("a")
	assert.True(t, found)
}

func TestGetByName_MissingReturnsFalse(t *testing.T) {
	r := newTestRegistry()
	_, _, ok := r.GetByName("missing")
	assert.False(t, ok)
}

func TestGetAllByCapability_OrderedByName(t *testing.T) {
	r := newTestRegistry()
	r.Register(runnerFor(engine.CapabilityLLM), descriptor("zeta", engine.CapabilityLLM))
	r.Register(runnerFor(engine.CapabilityLLM), descriptor("alpha", engine.CapabilityLLM))

	candidates := r.GetAllByCapability(engine.CapabilityLLM)
	require.Len(t, candidates, 2)
	assert.Equal(t, "alpha", candidates[0].Name)
	assert.Equal(t, "zeta", candidates[1].Name)
}

func TestGetAllByCapability_UnknownCapabilityReturnsEmpty(t *testing.T) {
	r := newTestRegistry()
	assert.Empty(t, r.GetAllByCapability(engine.CapabilityASR))
}

func TestUnregister_EvictsAndUnloads(t *testing.T) {
	r := newTestRegistry()
	runner := runnerFor(engine.CapabilityLLM)
	r.Register(runner, descriptor("a", engine.CapabilityLLM))

	r.Unregister("a")

	_, _, ok := r.GetByName("a")
	assert.False(t, ok)
	assert.Empty(t, r.GetAllByCapability(engine.CapabilityLLM))
	assert.True(t, runner.unloaded)
}

func TestUnregister_MissingNameIsNoOp(t *testing.T) {
	r := newTestRegistry()
	assert.NotPanics(t, func() { r.Unregister("missing") })
}

func TestSupportedCapabilities_ReflectsRegistrations(t *testing.T) {
	r := newTestRegistry()
	r.Register(runnerFor(engine.CapabilityLLM, engine.CapabilityASR), descriptor("a", engine.CapabilityLLM, engine.CapabilityASR))

	caps := r.SupportedCapabilities()
	assert.ElementsMatch(t, []engine.Capability{engine.CapabilityLLM, engine.CapabilityASR}, caps)
}

func TestClear_RemovesEverythingWithoutUnloading(t *testing.T) {
	r := newTestRegistry()
	runner := runnerFor(engine.CapabilityLLM)
	r.Register(runner, descriptor("a", engine.CapabilityLLM))

	r.Clear()

	assert.Empty(t, r.GetAll())
	assert.Empty(t, r.SupportedCapabilities())
	assert.False(t, runner.unloaded)
}

func TestGetAll_ReturnsClonedDescriptors(t *testing.T) {
	r := newTestRegistry()
	r.Register(runnerFor(engine.CapabilityLLM), descriptor("a", engine.CapabilityLLM))

	all := r.GetAll()
	require.Contains(t, all, "a")
	desc := all["a"]
	desc.Name = "mutated"
	all2 := r.GetAll()
	assert.Equal(t, "a", all2["a"].Name)
}

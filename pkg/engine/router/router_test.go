package router

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/coordinator"
	"github.com/edgerunner/engine/pkg/engine/manager"
	"github.com/edgerunner/engine/pkg/engine/registry"
	"github.com/edgerunner/engine/pkg/engine/state"
	"github.com/edgerunner/engine/pkg/logging"
)

type fakeRunner struct {
	streamable bool
	streamErr  *engine.RunnerError
}

func (f *fakeRunner) Capabilities() []engine.Capability {
	return []engine.Capability{engine.CapabilityLLM, engine.CapabilityASR, engine.CapabilityTTS, engine.CapabilityGuardian}
}
func (f *fakeRunner) IsLoaded() bool        { return true }
func (f *fakeRunner) LoadedModelID() string { return "m" }
func (f *fakeRunner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	return true, nil
}
func (f *fakeRunner) Unload(ctx context.Context) error { return nil }
func (f *fakeRunner) ParameterSchema() []engine.ParameterSchema {
	return nil
}
func (f *fakeRunner) ValidateParameters(params map[string]any) engine.ValidationResult {
	return engine.Valid()
}
func (f *fakeRunner) Run(ctx context.Context, request engine.Request) engine.Result {
	return engine.Result{Outputs: map[string]any{"text": "hi"}}
}
func (f *fakeRunner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	if !f.streamable {
		return nil, engine.ErrStreamingUnsupported
	}
	if f.streamErr != nil {
		return &oneShotStream{result: engine.Result{Error: f.streamErr}}, nil
	}
	return &oneShotStream{result: engine.Result{Outputs: map[string]any{"text": "chunk"}, Partial: false}}, nil
}

type oneShotStream struct {
	sent   bool
	result engine.Result
}

func (s *oneShotStream) Next(ctx context.Context) (engine.Result, bool) {
	if s.sent {
		return engine.Result{}, false
	}
	s.sent = true
	return s.result, true
}

type fakeSettings struct{}

func (fakeSettings) Current() engine.EngineSettings { return engine.EmptySettings() }

type recordingEgress struct {
	results []engine.Result
	errs    []*engine.RunnerError
}

func (e *recordingEgress) DeliverResult(correlationID string, result engine.Result) {
	e.results = append(e.results, result)
}
func (e *recordingEgress) DeliverError(correlationID string, err *engine.RunnerError) {
	e.errs = append(e.errs, err)
}

func newTestRouter(streamable bool) *Router {
	return newTestRouterWithRunner(&fakeRunner{streamable: streamable})
}

func newTestRouterWithRunner(runner *fakeRunner) *Router {
	log := logging.NewLogrusAdapter(logrus.New())
	reg := registry.New(log)
	reg.Register(runner, engine.RunnerDescriptor{
		Name:         "runner",
		Capabilities: []engine.Capability{engine.CapabilityLLM, engine.CapabilityASR, engine.CapabilityTTS, engine.CapabilityGuardian},
	})
	mgr := manager.New(log, reg, fakeSettings{}, nil)
	coord := coordinator.New(log, mgr, state.New(), nil)
	return New(log, coord)
}

func TestDispatch_InvalidInputDeliversError(t *testing.T) {
	r := newTestRouter(false)
	egress := &recordingEgress{}
	r.Dispatch(context.Background(), VerbChat, "c1", engine.Request{}, "runner", false, egress)

	require.Len(t, egress.errs, 1)
	assert.Equal(t, engine.ErrCodeInvalidInput, egress.errs[0].Code)
	assert.Empty(t, egress.results)
}

func TestDispatch_OneShotSuccess(t *testing.T) {
	r := newTestRouter(false)
	egress := &recordingEgress{}
	req := engine.Request{Inputs: map[string]any{"text": "hello"}}
	r.Dispatch(context.Background(), VerbChat, "c2", req, "runner", false, egress)

	require.Len(t, egress.results, 1)
	assert.False(t, egress.results[0].Partial)
	assert.Empty(t, egress.errs)
}

func TestDispatch_ASRAcceptsAudioID(t *testing.T) {
	r := newTestRouter(false)
	egress := &recordingEgress{}
	req := engine.Request{Inputs: map[string]any{"audio_id": "clip-1"}}
	r.Dispatch(context.Background(), VerbASR, "c3", req, "runner", false, egress)

	assert.Empty(t, egress.errs)
	require.Len(t, egress.results, 1)
}

func TestDispatch_StreamForwardsEmissions(t *testing.T) {
	r := newTestRouter(true)
	egress := &recordingEgress{}
	req := engine.Request{Inputs: map[string]any{"text": "hello"}}
	r.Dispatch(context.Background(), VerbChat, "c4", req, "runner", true, egress)

	require.Len(t, egress.results, 1)
	assert.False(t, egress.results[0].Partial)
}

func TestDispatch_StreamTerminalErrorDeliversError(t *testing.T) {
	streamErr := engine.NewProcessingError("runner: inference failed mid-stream", false, nil)
	r := newTestRouterWithRunner(&fakeRunner{streamable: true, streamErr: streamErr})
	egress := &recordingEgress{}
	req := engine.Request{Inputs: map[string]any{"text": "hello"}}
	r.Dispatch(context.Background(), VerbChat, "c6", req, "runner", true, egress)

	assert.Empty(t, egress.results)
	require.Len(t, egress.errs, 1)
	assert.Equal(t, streamErr.Code, egress.errs[0].Code)
}

func TestDispatch_UnrecognizedVerb(t *testing.T) {
	r := newTestRouter(false)
	egress := &recordingEgress{}
	r.Dispatch(context.Background(), Verb("bogus"), "c5", engine.Request{}, "runner", false, egress)
	require.Len(t, egress.errs, 1)
	assert.Equal(t, engine.ErrCodeInvalidInput, egress.errs[0].Code)
}

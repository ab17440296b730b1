package mediatek

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/logging"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(logging.NewLogrusAdapter(logrus.New()))
	require.NoError(t, err)
	return r.(*Runner)
}

func TestLoad_RejectsEmptyModelPath(t *testing.T) {
	r := newTestRunner(t)
	ok, err := r.Load(context.Background(), "", engine.EmptySettings(), nil)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestLoad_Succeeds(t *testing.T) {
	r := newTestRunner(t)
	ok, err := r.Load(context.Background(), "model.onnx", engine.EmptySettings(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, r.IsLoaded())
	assert.Equal(t, "model.onnx", r.LoadedModelID())
}

func TestLoad_IdempotentForSameModel(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Load(context.Background(), "model.onnx", engine.EmptySettings(), nil)
	require.NoError(t, err)

	ok, err := r.Load(context.Background(), "model.onnx", engine.EmptySettings(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnload_ClearsState(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Load(context.Background(), "model.onnx", engine.EmptySettings(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Unload(context.Background()))
	assert.False(t, r.IsLoaded())
	assert.Empty(t, r.LoadedModelID())
}

func TestUnload_SafeWhenNotLoaded(t *testing.T) {
	r := newTestRunner(t)
	assert.NoError(t, r.Unload(context.Background()))
}

func TestRun_NotLoadedReturnsError(t *testing.T) {
	r := newTestRunner(t)
	result := r.Run(context.Background(), engine.Request{Inputs: map[string]any{"text": "hi"}})
	require.NotNil(t, result.Error)
	assert.Equal(t, engine.ErrCodeNotLoaded, result.Error.Code)
}

func TestRun_EchoesPromptThroughStubBackend(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Load(context.Background(), "model.onnx", engine.EmptySettings(), nil)
	require.NoError(t, err)

	result := r.Run(context.Background(), engine.Request{Inputs: map[string]any{"text": "hello"}})
	require.Nil(t, result.Error)
	text, ok := result.OutputText()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestRunAsFlow_EmitsSingleTerminalResult(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Load(context.Background(), "model.onnx", engine.EmptySettings(), nil)
	require.NoError(t, err)

	stream, err := r.RunAsFlow(context.Background(), engine.Request{Inputs: map[string]any{"text": "hi"}})
	require.NoError(t, err)

	result, ok := stream.Next(context.Background())
	require.True(t, ok)
	assert.False(t, result.Partial)

	_, ok = stream.Next(context.Background())
	assert.False(t, ok)
}

func TestValidateParameters_RejectsOutOfRangeMaxTokens(t *testing.T) {
	r := newTestRunner(t)
	assert.True(t, r.ValidateParameters(map[string]any{"max_tokens": 128}).Valid)
	assert.False(t, r.ValidateParameters(map[string]any{"max_tokens": 0}).Valid)
	assert.False(t, r.ValidateParameters(map[string]any{"max_tokens": 5000}).Valid)
}

func TestCapabilities(t *testing.T) {
	r := newTestRunner(t)
	assert.ElementsMatch(t, []engine.Capability{engine.CapabilityLLM, engine.CapabilityVLM}, r.Capabilities())
}

package openrouter

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

func TestLoad_RequiresAPIKey(t *testing.T) {
	r := newTestRunner(t)
	ok, err := r.Load(context.Background(), "openrouter/auto", engine.EmptySettings(), nil)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.False(t, r.IsLoaded())
}

func TestLoad_MergesSettingsAndInitialParams(t *testing.T) {
	r := newTestRunner(t)
	settings := engine.EmptySettings()
	settings.RunnerParameters[Name] = map[string]any{"api_key": "sk-from-settings", "base_url": "https://example.invalid/v1"}

	ok, err := r.Load(context.Background(), "anthropic/claude-3.5-sonnet", settings, map[string]any{"api_key": "sk-override"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, r.IsLoaded())
	assert.Equal(t, "anthropic/claude-3.5-sonnet", r.LoadedModelID())
}

func TestLoad_IdempotentForSameModel(t *testing.T) {
	r := newTestRunner(t)
	settings := engine.EmptySettings()
	settings.RunnerParameters[Name] = map[string]any{"api_key": "sk-test"}

	ok1, err1 := r.Load(context.Background(), "openrouter/auto", settings, nil)
	require.NoError(t, err1)
	require.True(t, ok1)

	ok2, err2 := r.Load(context.Background(), "openrouter/auto", settings, nil)
	require.NoError(t, err2)
	assert.True(t, ok2)
}

func TestUnload_ClearsState(t *testing.T) {
	r := newTestRunner(t)
	settings := engine.EmptySettings()
	settings.RunnerParameters[Name] = map[string]any{"api_key": "sk-test"}
	_, err := r.Load(context.Background(), "openrouter/auto", settings, nil)
	require.NoError(t, err)

	require.NoError(t, r.Unload(context.Background()))
	assert.False(t, r.IsLoaded())
	assert.Empty(t, r.LoadedModelID())
}

func TestRun_NotLoadedReturnsError(t *testing.T) {
	r := newTestRunner(t)
	result := r.Run(context.Background(), engine.Request{Inputs: map[string]any{"text": "hi"}})
	require.NotNil(t, result.Error)
	assert.Equal(t, engine.ErrCodeNotLoaded, result.Error.Code)
}

func TestRun_MissingTextInput(t *testing.T) {
	r := newTestRunner(t)
	settings := engine.EmptySettings()
	settings.RunnerParameters[Name] = map[string]any{"api_key": "sk-test"}
	_, err := r.Load(context.Background(), "openrouter/auto", settings, nil)
	require.NoError(t, err)

	result := r.Run(context.Background(), engine.Request{})
	require.NotNil(t, result.Error)
	assert.Equal(t, engine.ErrCodeInvalidInput, result.Error.Code)
}

func TestValidateParameters(t *testing.T) {
	r := newTestRunner(t)

	assert.True(t, r.ValidateParameters(map[string]any{"temperature": 0.7, "max_tokens": 256}).Valid)
	assert.False(t, r.ValidateParameters(map[string]any{"temperature": 3.0}).Valid)
	assert.False(t, r.ValidateParameters(map[string]any{"max_tokens": 0}).Valid)
}

func TestParameterSchema_DeclaresAPIKeyAsSensitive(t *testing.T) {
	r := newTestRunner(t)
	schema := r.ParameterSchema()

	var found bool
	for _, p := range schema {
		if p.Name == "api_key" {
			found = true
			assert.True(t, p.Sensitive)
			assert.True(t, p.Required)
		}
	}
	assert.True(t, found)
}

func TestCapabilities(t *testing.T) {
	r := newTestRunner(t)
	assert.ElementsMatch(t, []engine.Capability{engine.CapabilityLLM, engine.CapabilityVLM}, r.Capabilities())
}

func TestBuildParams_AppliesRequestOverrides(t *testing.T) {
	r := newTestRunner(t)
	request := engine.Request{
		Inputs: map[string]any{"text": "hello"},
		Params: map[string]any{"temperature": 0.2, "max_tokens": 64},
	}
	params, err := r.buildParams("openrouter/auto", request)
	require.NoError(t, err)
	require.Len(t, params.Messages, 1)
	assert.Equal(t, "hello", params.Messages[0].Content)
	require.NotNil(t, params.Temperature)
	assert.InDelta(t, 0.2, *params.Temperature, 0.0001)
	require.NotNil(t, params.MaxTokens)
	assert.Equal(t, 64, *params.MaxTokens)
}

// Package openrouter is the OPENROUTER vendor runner: an LLM/VLM backend
// that proxies to OpenRouter's OpenAI-compatible chat completion API.
//
// Grounded on MrWong99-glyphoxa's pkg/provider/llm/anyllm package, which
// wraps github.com/mozilla-ai/any-llm-go's per-vendor provider
// constructors behind a single backend interface (Completion,
// CompletionStream). OpenRouter has no dedicated any-llm-go provider
// package, so this runner reuses the library's "openai" provider pointed
// at OpenRouter's base URL, the same pattern glyphoxa documents for
// llamacpp/llamafile (OpenAI-wire-compatible servers behind a custom
// base URL option).
package openrouter

import (
	"context"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
	"github.com/sirupsen/logrus"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/catalog"
	"github.com/edgerunner/engine/pkg/logging"
)

// Name is this runner's registry identifier.
const Name = "OpenRouterLLM"

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultTemperature = 1.0
	defaultMaxTokens   = 1024
)

func init() {
	catalog.Register(engine.RunnerDescriptor{
		Name:     Name,
		Vendor:   engine.VendorOpenRouter,
		Priority: engine.PriorityNormal,
		Capabilities: []engine.Capability{
			engine.CapabilityLLM,
			engine.CapabilityVLM,
		},
		HardwareRequirements: []engine.HardwareRequirement{engine.HardwareInternet},
		Enabled:              true,
		DefaultModelID:       "openrouter/auto",
	}, func() (engine.Runner, error) {
		return New(logging.NewLogrusAdapter(logrus.New()))
	})
}

// Runner implements engine.Runner against OpenRouter's remote API.
type Runner struct {
	log logging.Logger

	mu      sync.RWMutex
	loaded  bool
	modelID string
	backend anyllmlib.Provider
}

// New constructs an unloaded Runner.
func New(log logging.Logger) (engine.Runner, error) {
	return &Runner{log: log}, nil
}

// Capabilities implements engine.Runner.
func (r *Runner) Capabilities() []engine.Capability {
	return []engine.Capability{engine.CapabilityLLM, engine.CapabilityVLM}
}

// IsLoaded implements engine.Runner.
func (r *Runner) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// LoadedModelID implements engine.Runner.
func (r *Runner) LoadedModelID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modelID
}

// Load implements engine.Runner. modelID is the OpenRouter model slug
// (e.g. "openrouter/auto", "anthropic/claude-3.5-sonnet"). The API key and
// base URL are read from settings.ParametersFor(Name), overridden by
// initialParams.
func (r *Runner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && r.modelID == modelID {
		return true, nil
	}

	params := mergeParams(settings.ParametersFor(Name), initialParams)

	apiKey, _ := params["api_key"].(string)
	if apiKey == "" {
		return false, fmt.Errorf("openrouter: api_key parameter is required")
	}
	baseURL, ok := params["base_url"].(string)
	if !ok || baseURL == "" {
		baseURL = defaultBaseURL
	}

	backend, err := anyllmoai.New(anyllmlib.WithAPIKey(apiKey), anyllmlib.WithBaseURL(baseURL))
	if err != nil {
		return false, fmt.Errorf("openrouter: create backend: %w", err)
	}

	r.backend = backend
	r.modelID = modelID
	r.loaded = true
	return true, nil
}

// Unload implements engine.Runner.
func (r *Runner) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = nil
	r.modelID = ""
	r.loaded = false
	return nil
}

// ParameterSchema implements engine.Runner.
func (r *Runner) ParameterSchema() []engine.ParameterSchema {
	return []engine.ParameterSchema{
		{Name: "api_key", Type: engine.ParameterString, Required: true, Sensitive: true, Category: "load"},
		{Name: "base_url", Type: engine.ParameterString, Default: defaultBaseURL, Category: "load"},
		{Name: "temperature", Type: engine.ParameterFloat, Default: defaultTemperature, Constraints: map[string]any{"min": 0.0, "max": 2.0}, Category: "request"},
		{Name: "max_tokens", Type: engine.ParameterInt, Default: defaultMaxTokens, Constraints: map[string]any{"min": 1}, Category: "request"},
	}
}

// ValidateParameters implements engine.Runner.
func (r *Runner) ValidateParameters(params map[string]any) engine.ValidationResult {
	if t, ok := params["temperature"]; ok {
		f, ok := asFloat(t)
		if !ok || f < 0 || f > 2 {
			return engine.Invalid("temperature must be a number between 0 and 2")
		}
	}
	if mt, ok := params["max_tokens"]; ok {
		n, ok := asInt(mt)
		if !ok || n < 1 {
			return engine.Invalid("max_tokens must be a positive integer")
		}
	}
	return engine.Valid()
}

// Run implements engine.Runner.
func (r *Runner) Run(ctx context.Context, request engine.Request) engine.Result {
	backend, modelID, err := r.snapshot()
	if err != nil {
		return engine.ErrorResult(engine.NewNotLoadedError(err.Error()))
	}

	params, err := r.buildParams(modelID, request)
	if err != nil {
		return engine.ErrorResult(engine.NewInvalidInputError(err.Error()))
	}

	resp, err := backend.Completion(ctx, params)
	if err != nil {
		return engine.ErrorResult(engine.NewProcessingError("openrouter completion failed", true, err))
	}
	if len(resp.Choices) == 0 {
		return engine.ErrorResult(engine.NewProcessingError("openrouter returned no choices", true, nil))
	}

	choice := resp.Choices[0]
	outputs := map[string]any{"text": choice.Message.ContentString()}
	meta := map[string]any{"finish_reason": choice.FinishReason}
	if resp.Usage != nil {
		meta["prompt_tokens"] = resp.Usage.PromptTokens
		meta["completion_tokens"] = resp.Usage.CompletionTokens
		meta["total_tokens"] = resp.Usage.TotalTokens
	}
	return engine.Result{Outputs: outputs, Metadata: meta, Partial: false}
}

// RunAsFlow implements engine.Runner.
func (r *Runner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	backend, modelID, err := r.snapshot()
	if err != nil {
		return nil, engine.NewNotLoadedError(err.Error())
	}

	params, err := r.buildParams(modelID, request)
	if err != nil {
		return nil, engine.NewInvalidInputError(err.Error())
	}

	chunks, errs := backend.CompletionStream(ctx, params)
	return &flowStream{chunks: chunks, errs: errs}, nil
}

func (r *Runner) snapshot() (anyllmlib.Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, "", fmt.Errorf("openrouter: runner not loaded")
	}
	return r.backend, r.modelID, nil
}

func (r *Runner) buildParams(modelID string, request engine.Request) (anyllmlib.CompletionParams, error) {
	text, ok := request.InputText()
	if !ok {
		return anyllmlib.CompletionParams{}, fmt.Errorf("openrouter: request missing \"text\" input")
	}

	temperature := request.ParamFloat64("temperature", defaultTemperature)
	maxTokens := request.ParamInt("max_tokens", defaultMaxTokens)

	return anyllmlib.CompletionParams{
		Model:       modelID,
		Messages:    []anyllmlib.Message{{Role: anyllmlib.RoleUser, Content: text}},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, nil
}

// flowStream adapts any-llm-go's dual-channel streaming shape (a chunk
// channel plus a separate error channel, drained after the chunk channel
// closes) to engine.ResultStream's pull-based Next.
type flowStream struct {
	chunks      <-chan anyllmlib.CompletionChunk
	errs        <-chan error
	sawTerminal bool
}

// Next implements engine.ResultStream.
func (s *flowStream) Next(ctx context.Context) (engine.Result, bool) {
	if s.sawTerminal {
		return engine.Result{}, false
	}

	select {
	case <-ctx.Done():
		s.sawTerminal = true
		return engine.Result{}, false
	case chunk, ok := <-s.chunks:
		if !ok {
			s.sawTerminal = true
			if err := <-s.errs; err != nil {
				return engine.ErrorResult(engine.NewProcessingError("openrouter stream failed", true, err)), true
			}
			return engine.Result{Partial: false}, true
		}
		if len(chunk.Choices) == 0 {
			return engine.Result{Partial: true}, true
		}
		delta := chunk.Choices[0].Delta
		return engine.Result{Outputs: map[string]any{"text": delta.Content}, Partial: true}, true
	}
}

func mergeParams(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

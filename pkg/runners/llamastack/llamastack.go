// Package llamastack is the LLAMASTACK vendor runner: an LLM backend that
// talks to a Llama Stack distribution's OpenAI-compatible inference API
// directly through github.com/openai/openai-go, rather than through the
// any-llm-go abstraction pkg/runners/openrouter uses for its remote call.
// Both runners have the same shape (remote HTTP client, bearer auth,
// chat-completion wire format); this one is grounded directly on
// MrWong99-glyphoxa's pkg/provider/llm/openai package, which builds an
// oai.Client with a custom base URL/API key option set and drives
// Chat.Completions.New / Chat.Completions.NewStreaming.
package llamastack

import (
	"context"
	"fmt"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/sirupsen/logrus"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/catalog"
	"github.com/edgerunner/engine/pkg/logging"
)

// Name is this runner's registry identifier.
const Name = "LlamaStackLLM"

const (
	defaultBaseURL     = "http://localhost:8321/v1/openai/v1"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

func init() {
	catalog.Register(engine.RunnerDescriptor{
		Name:                 Name,
		Vendor:               engine.VendorLlamaStack,
		Priority:             engine.PriorityNormal,
		Capabilities:         []engine.Capability{engine.CapabilityLLM},
		HardwareRequirements: []engine.HardwareRequirement{engine.HardwareInternet},
		Enabled:              true,
		DefaultModelID:       "llama3.2:3b",
	}, func() (engine.Runner, error) {
		return New(logging.NewLogrusAdapter(logrus.New()))
	})
}

// Runner implements engine.Runner against a Llama Stack distribution.
type Runner struct {
	log logging.Logger

	mu      sync.RWMutex
	loaded  bool
	modelID string
	client  *oai.Client
}

// New constructs an unloaded Runner.
func New(log logging.Logger) (engine.Runner, error) {
	return &Runner{log: log}, nil
}

// Capabilities implements engine.Runner.
func (r *Runner) Capabilities() []engine.Capability {
	return []engine.Capability{engine.CapabilityLLM}
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

// Load implements engine.Runner. The distribution's base URL and optional
// bearer token are read from settings.ParametersFor(Name), overridden by
// initialParams.
func (r *Runner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && r.modelID == modelID {
		return true, nil
	}

	params := mergeParams(settings.ParametersFor(Name), initialParams)

	baseURL, ok := params["base_url"].(string)
	if !ok || baseURL == "" {
		baseURL = defaultBaseURL
	}

	reqOpts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey, ok := params["api_key"].(string); ok && apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}

	client := oai.NewClient(reqOpts...)
	r.client = &client
	r.modelID = modelID
	r.loaded = true
	return true, nil
}

// Unload implements engine.Runner.
func (r *Runner) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = nil
	r.modelID = ""
	r.loaded = false
	return nil
}

// ParameterSchema implements engine.Runner.
func (r *Runner) ParameterSchema() []engine.ParameterSchema {
	return []engine.ParameterSchema{
		{Name: "base_url", Type: engine.ParameterString, Default: defaultBaseURL, Category: "load"},
		{Name: "api_key", Type: engine.ParameterString, Sensitive: true, Category: "load"},
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
	client, modelID, err := r.snapshot()
	if err != nil {
		return engine.ErrorResult(engine.NewNotLoadedError(err.Error()))
	}

	params, err := buildParams(modelID, request)
	if err != nil {
		return engine.ErrorResult(engine.NewInvalidInputError(err.Error()))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return engine.ErrorResult(engine.NewProcessingError("llama stack completion failed", true, err))
	}
	if len(resp.Choices) == 0 {
		return engine.ErrorResult(engine.NewProcessingError("llama stack returned no choices", true, nil))
	}

	choice := resp.Choices[0]
	outputs := map[string]any{"text": choice.Message.Content}
	meta := map[string]any{
		"finish_reason":     choice.FinishReason,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}
	return engine.Result{Outputs: outputs, Metadata: meta, Partial: false}
}

// RunAsFlow implements engine.Runner.
func (r *Runner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	client, modelID, err := r.snapshot()
	if err != nil {
		return nil, engine.NewNotLoadedError(err.Error())
	}

	params, err := buildParams(modelID, request)
	if err != nil {
		return nil, engine.NewInvalidInputError(err.Error())
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, engine.NewProcessingError("llama stack stream start failed", true, err)
	}
	return &flowStream{stream: stream}, nil
}

func (r *Runner) snapshot() (*oai.Client, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, "", fmt.Errorf("llamastack: runner not loaded")
	}
	return r.client, r.modelID, nil
}

func buildParams(modelID string, request engine.Request) (oai.ChatCompletionNewParams, error) {
	text, ok := request.InputText()
	if !ok {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("llamastack: request missing \"text\" input")
	}

	temperature := request.ParamFloat64("temperature", defaultTemperature)
	maxTokens := request.ParamInt("max_tokens", defaultMaxTokens)

	return oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(modelID),
		Messages:            []oai.ChatCompletionMessageParamUnion{oai.UserMessage(text)},
		Temperature:         param.NewOpt(temperature),
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
	}, nil
}

// flowStream adapts openai-go's ssestream.Stream (a pull-based Next/Current/
// Err iterator that must be Closed) to engine.ResultStream's Next.
type flowStream struct {
	stream interface {
		Next() bool
		Current() oai.ChatCompletionChunk
		Err() error
		Close() error
	}
	closed bool
}

// Next implements engine.ResultStream.
func (s *flowStream) Next(ctx context.Context) (engine.Result, bool) {
	if s.closed {
		return engine.Result{}, false
	}

	select {
	case <-ctx.Done():
		s.closeOnce()
		return engine.Result{}, false
	default:
	}

	if !s.stream.Next() {
		s.closeOnce()
		if err := s.stream.Err(); err != nil {
			return engine.ErrorResult(engine.NewProcessingError("llama stack stream failed", true, err)), true
		}
		return engine.Result{Partial: false}, true
	}

	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return engine.Result{Partial: true}, true
	}
	return engine.Result{Outputs: map[string]any{"text": chunk.Choices[0].Delta.Content}, Partial: true}, true
}

func (s *flowStream) closeOnce() {
	if !s.closed {
		s.closed = true
		_ = s.stream.Close()
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

// Package sherpa is the SHERPA vendor runner: a combined ASR/TTS backend.
// Speech-to-text is grounded on MrWong99-glyphoxa's
// pkg/provider/stt/whisper.NativeProvider (whisper.cpp CGO bindings,
// one context per inference, float32 mono PCM in, segment text out).
// Text-to-speech has no neural synthesis library anywhere in the pack;
// it produces a deterministic tone-burst waveform standing in for a real
// vocoder and frames it through layeh.com/gopus the same way
// glyphoxa's pkg/audio/discord package frames PCM into Opus packets —
// the Opus encoding is real and exercised, only the waveform
// source is a placeholder.
package sherpa

import (
	"context"
	"fmt"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/catalog"
	"github.com/edgerunner/engine/pkg/logging"
)

// Name is this runner's registry identifier.
const Name = "SherpaSpeech"

func init() {
	catalog.Register(engine.RunnerDescriptor{
		Name:                 Name,
		Vendor:               engine.VendorSherpa,
		Priority:             engine.PriorityNormal,
		Capabilities:         []engine.Capability{engine.CapabilityASR, engine.CapabilityTTS},
		HardwareRequirements: []engine.HardwareRequirement{engine.HardwareMicrophone},
		Enabled:              true,
		DefaultModelID:       "ggml-base.en",
	}, func() (engine.Runner, error) {
		return New(logging.NewLogrusAdapter(logrus.New()))
	})
}

// Runner implements engine.Runner for both ASR (whisper.cpp) and TTS
// (tone synthesis + Opus framing). Which path Run takes is determined by
// which input the request carries: "audio" routes to transcription, "text"
// routes to synthesis, and "audio_id" is rejected as invalid input.
type Runner struct {
	log logging.Logger

	mu       sync.RWMutex
	loaded   bool
	modelID  string
	model    whisperlib.Model
	language string
}

// New constructs an unloaded Runner.
func New(log logging.Logger) (engine.Runner, error) {
	return &Runner{log: log, language: "en"}, nil
}

// Capabilities implements engine.Runner.
func (r *Runner) Capabilities() []engine.Capability {
	return []engine.Capability{engine.CapabilityASR, engine.CapabilityTTS}
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

// Load implements engine.Runner. modelID is a whisper.cpp ggml model
// path; TTS synthesis needs no model file.
func (r *Runner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && r.modelID == modelID {
		return true, nil
	}
	if r.model != nil {
		_ = r.model.Close()
		r.model = nil
	}

	model, err := whisperlib.New(modelID)
	if err != nil {
		return false, fmt.Errorf("sherpa: load whisper model %q: %w", modelID, err)
	}

	params := mergeParams(settings.ParametersFor(Name), initialParams)
	if lang, ok := params["language"].(string); ok && lang != "" {
		r.language = lang
	}

	r.model = model
	r.modelID = modelID
	r.loaded = true
	return true, nil
}

// Unload implements engine.Runner.
func (r *Runner) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != nil {
		err := r.model.Close()
		r.model = nil
		r.modelID = ""
		r.loaded = false
		return err
	}
	r.modelID = ""
	r.loaded = false
	return nil
}

// ParameterSchema implements engine.Runner.
func (r *Runner) ParameterSchema() []engine.ParameterSchema {
	return []engine.ParameterSchema{
		{Name: "language", Type: engine.ParameterString, Default: "en", Category: "load"},
		{Name: "voice_pitch_hz", Type: engine.ParameterFloat, Default: float64(defaultPitchHz), Constraints: map[string]any{"min": 80.0, "max": 400.0}, Category: "request"},
	}
}

// ValidateParameters implements engine.Runner.
func (r *Runner) ValidateParameters(params map[string]any) engine.ValidationResult {
	if p, ok := params["voice_pitch_hz"]; ok {
		f, ok := asFloat(p)
		if !ok || f < 80 || f > 400 {
			return engine.Invalid("voice_pitch_hz must be a number between 80 and 400")
		}
	}
	return engine.Valid()
}

// Run implements engine.Runner.
func (r *Runner) Run(ctx context.Context, request engine.Request) engine.Result {
	if _, ok := request.InputAudio(); ok {
		return r.transcribe(ctx, request)
	}
	if _, ok := request.InputAudioID(); ok {
		return engine.ErrorResult(engine.NewInvalidInputError("sherpa: audio_id resolution requires a model resolver, not supported inline"))
	}
	if _, ok := request.InputText(); ok {
		return r.synthesize(ctx, request)
	}
	return engine.ErrorResult(engine.NewInvalidInputError("sherpa: request must carry \"audio\" or \"text\" input"))
}

// RunAsFlow implements engine.Runner. ASR streams one partial result per
// recognized whisper segment (a MUST per the ASR capability contract); TTS
// synthesis has no natural intermediate output to stream and reports
// unsupported.
func (r *Runner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	if _, ok := request.InputAudio(); ok {
		return r.transcribeStream(ctx, request)
	}
	if _, ok := request.InputAudioID(); ok {
		return nil, engine.NewInvalidInputError("sherpa: audio_id resolution requires a model resolver, not supported inline")
	}
	return nil, engine.ErrStreamingUnsupported
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

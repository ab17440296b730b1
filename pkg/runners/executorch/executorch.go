// Package executorch is the EXECUTORCH vendor runner: a CPU-only LLM
// fallback backend, sharing MEDIATEK's native/stub ONNX Runtime split
// (pkg/runners/mediatek) but gated on plain CPU presence instead of an
// NPU, so it is the runner discovery falls back to on hosts without
// MediaTek acceleration.
package executorch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/catalog"
	"github.com/edgerunner/engine/pkg/logging"
)

// Name is this runner's registry identifier.
const Name = "ExecuTorchCPU"

const defaultMaxTokens = 256

func init() {
	catalog.Register(engine.RunnerDescriptor{
		Name:                 Name,
		Vendor:               engine.VendorExecuTorch,
		Priority:             engine.PriorityNormal,
		Capabilities:         []engine.Capability{engine.CapabilityLLM},
		HardwareRequirements: []engine.HardwareRequirement{engine.HardwareCPU},
		Enabled:              true,
		DefaultModelID:       "executorch-llm-cpu",
	}, func() (engine.Runner, error) {
		return New(logging.NewLogrusAdapter(logrus.New()))
	})
}

type backend interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Close() error
}

// newBackend is implemented once per build-tag variant (native.go, stub.go).
var newBackend func(modelPath string) (backend, error)

// Runner implements engine.Runner against a CPU ONNX backend.
type Runner struct {
	log logging.Logger

	mu      sync.RWMutex
	loaded  bool
	modelID string
	be      backend
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

// Load implements engine.Runner.
func (r *Runner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && r.modelID == modelID {
		return true, nil
	}
	if r.be != nil {
		_ = r.be.Close()
		r.be = nil
		r.loaded = false
	}

	be, err := newBackend(modelID)
	if err != nil {
		return false, fmt.Errorf("executorch: load %q: %w", modelID, err)
	}

	r.be = be
	r.modelID = modelID
	r.loaded = true
	return true, nil
}

// Unload implements engine.Runner.
func (r *Runner) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.be != nil {
		err := r.be.Close()
		r.be = nil
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
		{Name: "max_tokens", Type: engine.ParameterInt, Default: defaultMaxTokens, Constraints: map[string]any{"min": 1, "max": 4096}, Category: "request"},
	}
}

// ValidateParameters implements engine.Runner.
func (r *Runner) ValidateParameters(params map[string]any) engine.ValidationResult {
	if mt, ok := params["max_tokens"]; ok {
		n, ok := mt.(int)
		if !ok {
			if f, ok := mt.(float64); ok {
				n = int(f)
			} else {
				return engine.Invalid("max_tokens must be an integer")
			}
		}
		if n < 1 || n > 4096 {
			return engine.Invalid("max_tokens must be between 1 and 4096")
		}
	}
	return engine.Valid()
}

// Run implements engine.Runner.
func (r *Runner) Run(ctx context.Context, request engine.Request) engine.Result {
	be, err := r.snapshot()
	if err != nil {
		return engine.ErrorResult(engine.NewNotLoadedError(err.Error()))
	}

	text, ok := request.InputText()
	if !ok {
		return engine.ErrorResult(engine.NewInvalidInputError("executorch: request missing \"text\" input"))
	}
	maxTokens := request.ParamInt("max_tokens", defaultMaxTokens)

	out, err := be.Generate(ctx, text, maxTokens)
	if err != nil {
		return engine.ErrorResult(engine.NewProcessingError("executorch generation failed", true, err))
	}
	return engine.Result{Outputs: map[string]any{"text": out}, Partial: false}
}

// RunAsFlow implements engine.Runner. Generation is one-shot; RunAsFlow
// wraps the single result as a one-item stream.
func (r *Runner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	result := r.Run(ctx, request)
	return &singleStream{result: result}, nil
}

func (r *Runner) snapshot() (backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, fmt.Errorf("executorch: runner not loaded")
	}
	return r.be, nil
}

type singleStream struct {
	result engine.Result
	done   bool
}

func (s *singleStream) Next(ctx context.Context) (engine.Result, bool) {
	if s.done {
		return engine.Result{}, false
	}
	s.done = true
	return s.result, true
}

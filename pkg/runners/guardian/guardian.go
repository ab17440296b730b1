// Package guardian is the CUSTOM vendor's GUARDIAN runner: a one-shot
// content-safety classifier. Unlike the other runners, GUARDIAN never
// streams (RunAsFlow always reports unsupported, mirroring the contract's
// own note that GUARDIAN runners are one-shot only) and needs no external
// model file or remote client — it scores text against a fixed category
// wordlist, the same "no-dependency, pure-function backend" shape the
// teacher uses for its simplest scheduling checks. No library anywhere in
// the examples pack targets closed-form text classification, so this is
// the one runner intentionally built on stdlib strings/regexp alone (see
// the grounding ledger).
package guardian

import (
	"context"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/catalog"
	"github.com/edgerunner/engine/pkg/logging"
)

// Name is this runner's registry identifier.
const Name = "LocalGuardian"

func init() {
	catalog.Register(engine.RunnerDescriptor{
		Name:                 Name,
		Vendor:               engine.VendorCustom,
		Priority:             engine.PriorityHigh,
		Capabilities:         []engine.Capability{engine.CapabilityGuardian},
		HardwareRequirements: nil,
		Enabled:              true,
		DefaultModelID:       "guardian-wordlist-v1",
	}, func() (engine.Runner, error) {
		return New(logging.NewLogrusAdapter(logrus.New()))
	})
}

// category is one content-safety category and the pattern that flags it.
type category struct {
	name    string
	pattern *regexp.Regexp
}

var defaultCategories = []category{
	{name: "self_harm", pattern: regexp.MustCompile(`(?i)\b(suicide|self[- ]harm|kill myself)\b`)},
	{name: "violence", pattern: regexp.MustCompile(`(?i)\b(bomb|shoot (up|him|her|them)|massacre)\b`)},
	{name: "hate", pattern: regexp.MustCompile(`(?i)\b(racial slur|ethnic cleansing)\b`)},
	{name: "illicit", pattern: regexp.MustCompile(`(?i)\b(synthesize (meth|nerve agent)|build a weapon)\b`)},
}

// Runner implements engine.Runner as a one-shot classifier.
type Runner struct {
	log logging.Logger

	mu         sync.RWMutex
	loaded     bool
	modelID    string
	threshold  float64
	categories []category
}

// New constructs an unloaded Runner.
func New(log logging.Logger) (engine.Runner, error) {
	return &Runner{log: log, threshold: 1.0, categories: defaultCategories}, nil
}

// Capabilities implements engine.Runner.
func (r *Runner) Capabilities() []engine.Capability {
	return []engine.Capability{engine.CapabilityGuardian}
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

// Load implements engine.Runner. There is no external model to read;
// modelID just names which wordlist version is active, and Load only
// flips the loaded flag.
func (r *Runner) Load(ctx context.Context, modelID string, settings engine.EngineSettings, initialParams map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && r.modelID == modelID {
		return true, nil
	}

	params := mergeParams(settings.ParametersFor(Name), initialParams)
	if th, ok := asFloat(params["block_threshold"]); ok {
		r.threshold = th
	}

	r.modelID = modelID
	r.loaded = true
	return true, nil
}

// Unload implements engine.Runner.
func (r *Runner) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modelID = ""
	r.loaded = false
	return nil
}

// ParameterSchema implements engine.Runner.
func (r *Runner) ParameterSchema() []engine.ParameterSchema {
	return []engine.ParameterSchema{
		{Name: "block_threshold", Type: engine.ParameterFloat, Default: 1.0, Constraints: map[string]any{"min": 0.0, "max": 1.0}, Category: "request"},
	}
}

// ValidateParameters implements engine.Runner.
func (r *Runner) ValidateParameters(params map[string]any) engine.ValidationResult {
	if th, ok := params["block_threshold"]; ok {
		f, ok := asFloat(th)
		if !ok || f < 0 || f > 1 {
			return engine.Invalid("block_threshold must be a number between 0 and 1")
		}
	}
	return engine.Valid()
}

// Run implements engine.Runner. It matches request's "text" input against
// the configured categories in order and reports the first that matches
// ("none" when none does).
func (r *Runner) Run(ctx context.Context, request engine.Request) engine.Result {
	r.mu.RLock()
	loaded := r.loaded
	categories := r.categories
	r.mu.RUnlock()

	if !loaded {
		return engine.ErrorResult(engine.NewNotLoadedError("guardian: runner not loaded"))
	}

	text, ok := request.InputText()
	if !ok {
		return engine.ErrorResult(engine.NewInvalidInputError("guardian: request missing \"text\" input"))
	}

	flagged, matched := classify(text, categories)

	return engine.Result{
		Outputs: map[string]any{
			"flagged":  flagged,
			"category": matched,
		},
		Partial: false,
	}
}

// RunAsFlow implements engine.Runner. GUARDIAN is one-shot only.
func (r *Runner) RunAsFlow(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	return nil, engine.ErrStreamingUnsupported
}

func classify(text string, categories []category) (bool, string) {
	for _, c := range categories {
		if c.pattern.MatchString(text) {
			return true, c.name
		}
	}
	return false, "none"
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

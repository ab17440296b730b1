package engine

import "context"

// ParameterType enumerates the scalar kinds a runner parameter can take.
type ParameterType string

const (
	ParameterString ParameterType = "string"
	ParameterInt    ParameterType = "int"
	ParameterFloat  ParameterType = "float"
	ParameterBool   ParameterType = "bool"
)

// ParameterSchema describes one parameter a runner accepts, either as a
// request param or as an initial/persisted runner parameter.
type ParameterSchema struct {
	Name        string
	Type        ParameterType
	Constraints map[string]any
	Default     any
	Required    bool
	Sensitive   bool
	Category    string
}

// ValidationResult is the outcome of validating a parameter map against a
// runner's schema.
type ValidationResult struct {
	Valid   bool
	Message string
}

// Valid constructs a successful ValidationResult.
func Valid() ValidationResult { return ValidationResult{Valid: true} }

// Invalid constructs a failed ValidationResult with message.
func Invalid(message string) ValidationResult { return ValidationResult{Valid: false, Message: message} }

// ResultStream is a lazy, finite sequence of Results. Consumers read
// sequentially; the producer emits zero or more results with Partial ==
// true followed by exactly one terminal result (Partial == false, which may
// carry an error). Cancelling ctx must stop production at the next
// emission boundary without emitting a terminal result.
type ResultStream interface {
	// Next blocks until the next Result is available, the stream ends, or
	// ctx is cancelled. ok is false when the stream has ended (including
	// via cancellation); callers must not call Next again after ok is
	// false.
	Next(ctx context.Context) (result Result, ok bool)
}

// Runner is the uniform interface every capability backend implements.
// Runner implementations need not be safe for concurrent invocation of
// Load/Unload (the engine manager serializes those per instance), but Run
// and RunAsFlow may be invoked concurrently once loaded.
type Runner interface {
	// Capabilities returns the capabilities this instance supports. Stable
	// for the instance's lifetime and must be a superset of the
	// descriptor's Capabilities.
	Capabilities() []Capability
	// IsLoaded reports whether a model is currently loaded.
	IsLoaded() bool
	// LoadedModelID returns the identifier last passed to Load, or "" if
	// unloaded.
	LoadedModelID() string
	// Load transitions the instance to Loaded. It is idempotent: calling
	// Load again with the same modelID while already loaded with that
	// model is a no-op returning true. It may block on I/O. On a false
	// return the instance remains Created/Unloaded.
	Load(ctx context.Context, modelID string, settings EngineSettings, initialParams map[string]any) (bool, error)
	// Unload is safe to call any number of times, including while already
	// Created or Unloaded.
	Unload(ctx context.Context) error
	// ParameterSchema is pure and static.
	ParameterSchema() []ParameterSchema
	// ValidateParameters is pure; it consults ParameterSchema.
	ValidateParameters(params map[string]any) ValidationResult
	// Run executes request synchronously. It never panics to signal
	// failure; failures are reported via Result.Error.
	Run(ctx context.Context, request Request) Result
	// RunAsFlow executes request and streams results. Runners that do not
	// support streaming return ErrStreamingUnsupported; the engine manager
	// converts this into an E406 result for the caller.
	RunAsFlow(ctx context.Context, request Request) (ResultStream, error)
}

// ErrStreamingUnsupported is returned by RunAsFlow when a runner does not
// implement streaming (e.g. GUARDIAN runners, which are one-shot only).
var ErrStreamingUnsupported = &RunnerError{Code: ErrCodeModeUnsupported, Message: "streaming not supported by this runner", Recoverable: false}

// Factory constructs an unloaded Runner instance. It takes no arguments; the
// catalog pairs each Factory with its descriptor. Discovery calls Factory
// once per surviving candidate descriptor.
type Factory func() (Runner, error)

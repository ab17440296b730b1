package engine

import "fmt"

// Error codes. Ranges are fixed by the spec: E001 resource/not-loaded, E101
// runtime, E4xx selection/validation, E5xx load failure, E6xx processing.
const (
	ErrCodeNotLoaded              = "E001"
	ErrCodeRuntime                = "E101"
	ErrCodeInvalidInput           = "E401"
	ErrCodeRunnerNotFound         = "E404"
	ErrCodeCapabilityUnsupported  = "E405"
	ErrCodeModeUnsupported        = "E406"
	ErrCodeLoadFailed             = "E501"
	ErrCodeProcessing             = "E601"
)

// RunnerError is the single error value that crosses component boundaries.
// Cause is for logging only; it is never serialized to a client.
type RunnerError struct {
	Code        string
	Message     string
	Recoverable bool
	Cause       error
}

func (e *RunnerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunnerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewNotLoadedError(message string) *RunnerError {
	return &RunnerError{Code: ErrCodeNotLoaded, Message: message, Recoverable: true}
}

func NewRuntimeError(cause error) *RunnerError {
	return &RunnerError{Code: ErrCodeRuntime, Message: "unclassified runtime error", Recoverable: true, Cause: cause}
}

func NewInvalidInputError(message string) *RunnerError {
	return &RunnerError{Code: ErrCodeInvalidInput, Message: message, Recoverable: false}
}

func NewRunnerNotFoundError(name string) *RunnerError {
	return &RunnerError{Code: ErrCodeRunnerNotFound, Message: fmt.Sprintf("runner %q not found", name), Recoverable: false}
}

func NewCapabilityUnsupportedError(name string, capability Capability) *RunnerError {
	return &RunnerError{
		Code:        ErrCodeCapabilityUnsupported,
		Message:     fmt.Sprintf("runner %q does not support capability %s", name, capability),
		Recoverable: false,
	}
}

func NewModeUnsupportedError(name, mode string) *RunnerError {
	return &RunnerError{
		Code:        ErrCodeModeUnsupported,
		Message:     fmt.Sprintf("runner %q does not support %s mode", name, mode),
		Recoverable: false,
	}
}

func NewLoadFailedError(name string, cause error) *RunnerError {
	return &RunnerError{
		Code:        ErrCodeLoadFailed,
		Message:     fmt.Sprintf("failed to load runner %q", name),
		Recoverable: true,
		Cause:       cause,
	}
}

func NewProcessingError(message string, recoverable bool, cause error) *RunnerError {
	return &RunnerError{Code: ErrCodeProcessing, Message: message, Recoverable: recoverable, Cause: cause}
}

package engine

// Result is the uniform output of a runner invocation. A partial result
// (Partial == true) never carries an error and is always followed by
// another Result for the same request. The terminal Result for a request
// has Partial == false; if it carries a non-nil Error, it is still the
// terminal one (errors are never attached to a partial result).
type Result struct {
	Outputs  map[string]any
	Metadata map[string]any
	Partial  bool
	Error    *RunnerError
}

// OutputText returns Outputs["text"] as a string.
func (r Result) OutputText() (string, bool) {
	v, ok := r.Outputs["text"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// OutputAudio returns Outputs["audio"] as a byte slice.
func (r Result) OutputAudio() ([]byte, bool) {
	v, ok := r.Outputs["audio"]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// ErrorResult builds a terminal Result carrying err.
func ErrorResult(err *RunnerError) Result {
	return Result{Partial: false, Error: err}
}

// IsTerminal reports whether r is a terminal (non-partial) result.
func (r Result) IsTerminal() bool {
	return !r.Partial
}

//go:build !executorch

package executorch

import (
	"context"
	"errors"
	"fmt"
)

func init() {
	newBackend = newStubBackend
}

// ErrNativeUnavailable indicates the module was built without the
// executorch tag, so no ONNX Runtime session backs this runner.
var ErrNativeUnavailable = errors.New("executorch: native CPU backend not available (build with -tags executorch)")

// stubBackend deterministically echoes the prompt, truncated to maxTokens
// characters, so the runner is exercisable without ONNX Runtime present.
type stubBackend struct {
	modelPath string
}

func newStubBackend(modelPath string) (backend, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("executorch: model path must not be empty")
	}
	return &stubBackend{modelPath: modelPath}, nil
}

func (b *stubBackend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if maxTokens <= 0 {
		return "", nil
	}
	if len(prompt) > maxTokens {
		return prompt[:maxTokens], nil
	}
	return prompt, nil
}

func (b *stubBackend) Close() error {
	return nil
}

//go:build !mtknpu

package mediatek

import (
	"context"
	"errors"
	"fmt"
)

func init() {
	newBackend = newStubBackend
}

// ErrNativeUnavailable indicates the module was built without the mtknpu
// tag, so no ONNX Runtime session backs this runner.
var ErrNativeUnavailable = errors.New("mediatek: native NPU backend not available (build with -tags mtknpu)")

// stubBackend deterministically echoes the prompt, truncated to maxTokens
// bytes, so the runner is exercisable (tests, dev builds) without ONNX
// Runtime or an MTK NPU present.
type stubBackend struct {
	modelPath string
}

func newStubBackend(modelPath string) (backend, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("mediatek: model path must not be empty")
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

//go:build mtknpu

package mediatek

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

func init() {
	newBackend = newONNXBackend
}

const (
	maxSequenceLength = 2048
	eosTokenID        = int64(0)
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// onnxBackend runs greedy autoregressive decoding over an ONNX causal-LM
// graph exposing "input_ids" (int64 [1, N]) and "logits" (float32
// [1, N, vocab]), the same tensor-lifecycle shape as the ORT-backed Silero
// engine this runner is grounded on: allocate once, Run(), read GetData().
type onnxBackend struct {
	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[int64]
	logitsTensor *ort.Tensor[float32]

	vocabSize int
}

func newONNXBackend(modelPath string) (backend, error) {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("mediatek: initialize onnxruntime: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[int64](ort.NewShape(1, maxSequenceLength))
	if err != nil {
		return nil, fmt.Errorf("mediatek: create input tensor: %w", err)
	}

	const vocabSize = 32000
	logitsTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, maxSequenceLength, int64(vocabSize)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("mediatek: create logits tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids"},
		[]string{"logits"},
		[]ort.Value{inputTensor},
		[]ort.Value{logitsTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		logitsTensor.Destroy()
		return nil, fmt.Errorf("mediatek: create session: %w", err)
	}

	return &onnxBackend{
		session:      session,
		inputTensor:  inputTensor,
		logitsTensor: logitsTensor,
		vocabSize:    vocabSize,
	}, nil
}

// Generate runs greedy decoding token-by-token until maxTokens is reached
// or the model emits eosTokenID. Tokenization is the caller's model's
// concern in production; this backend accepts prompt as a pre-tokenized,
// whitespace-separated list of decimal token ids so the runner stays
// tokenizer-agnostic without vendoring a specific one.
func (b *onnxBackend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	tokens := tokenize(prompt)
	if len(tokens) == 0 {
		return "", fmt.Errorf("mediatek: prompt produced no tokens")
	}

	data := b.inputTensor.GetData()
	for i := range data {
		data[i] = 0
	}

	generated := make([]int64, 0, maxTokens)
	pos := copy(data, tokens)

	for step := 0; step < maxTokens && pos < maxSequenceLength; step++ {
		select {
		case <-ctx.Done():
			return detokenize(generated), ctx.Err()
		default:
		}

		if err := b.session.Run(); err != nil {
			return "", fmt.Errorf("mediatek: inference: %w", err)
		}

		next := argmaxAt(b.logitsTensor.GetData(), pos-1, b.vocabSize)
		if next == eosTokenID {
			break
		}

		generated = append(generated, next)
		if pos < maxSequenceLength {
			data[pos] = next
			pos++
		}
	}

	return detokenize(generated), nil
}

func (b *onnxBackend) Close() error {
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
		b.inputTensor = nil
	}
	if b.logitsTensor != nil {
		b.logitsTensor.Destroy()
		b.logitsTensor = nil
	}
	return nil
}

func tokenize(prompt string) []int64 {
	fields := strings.Fields(prompt)
	tokens := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, id)
	}
	if len(tokens) == 0 {
		return []int64{1}
	}
	return tokens
}

func detokenize(tokens []int64) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = strconv.FormatInt(t, 10)
	}
	return strings.Join(parts, " ")
}

func argmaxAt(logits []float32, position, vocabSize int) int64 {
	base := position * vocabSize
	best := 0
	bestVal := logits[base]
	for i := 1; i < vocabSize; i++ {
		if v := logits[base+i]; v > bestVal {
			bestVal = v
			best = i
		}
	}
	return int64(best)
}

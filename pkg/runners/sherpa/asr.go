package sherpa

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/edgerunner/engine/pkg/engine"
)

// transcribe runs one whisper.cpp inference over the request's "audio"
// input, a fresh context per call (glyphoxa's NativeProvider.infer does
// the same: the model is shared, contexts are not thread-safe), and
// returns the joined transcript as a single terminal result.
func (r *Runner) transcribe(ctx context.Context, request engine.Request) engine.Result {
	segments, runErr := r.runInference(ctx, request)
	if runErr != nil {
		return engine.ErrorResult(runErr)
	}
	return engine.Result{Outputs: map[string]any{"text": strings.Join(segments, " ")}, Partial: false}
}

// transcribeStream runs the same whisper.cpp inference as transcribe but
// streams each recognized segment as its own partial result, followed by a
// non-partial terminal result, satisfying the ASR runner's streaming
// requirement without changing the underlying (synchronous, whole-buffer)
// whisper.cpp call: segmentation already happens inside wctx.Process/
// NextSegment, so streaming only needs to fan the existing segment loop out
// over time instead of joining it into one string up front.
func (r *Runner) transcribeStream(ctx context.Context, request engine.Request) (engine.ResultStream, error) {
	segments, runErr := r.runInference(ctx, request)
	if runErr != nil {
		return nil, runErr
	}
	return &segmentStream{segments: segments}, nil
}

// runInference performs one whisper.cpp Process call and returns the
// trimmed, non-empty segment texts in order. Shared by transcribe and
// transcribeStream so both paths run exactly the same inference.
func (r *Runner) runInference(ctx context.Context, request engine.Request) ([]string, *engine.RunnerError) {
	r.mu.RLock()
	model := r.model
	loaded := r.loaded
	language := r.language
	r.mu.RUnlock()

	if !loaded {
		return nil, engine.NewNotLoadedError("sherpa: runner not loaded")
	}

	pcm, _ := request.InputAudio()
	samples := pcmToFloat32Mono(pcm)
	if len(samples) == 0 {
		return nil, engine.NewInvalidInputError("sherpa: \"audio\" input is empty")
	}

	wctx, err := model.NewContext()
	if err != nil {
		return nil, engine.NewProcessingError("sherpa: create whisper context failed", true, err)
	}

	if err := wctx.SetLanguage(language); err != nil {
		r.log.WithError(err).Warn("sherpa: failed to set language, using model default")
	}

	if err := ctx.Err(); err != nil {
		return nil, engine.NewProcessingError("sherpa: context cancelled before inference", true, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, engine.NewProcessingError("sherpa: whisper process failed", true, err)
	}

	var segments []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, engine.NewProcessingError("sherpa: read segment failed", true, err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}

// segmentStream emits one already-computed whisper segment per partial
// Result, then a non-partial terminal Result with no error. Since
// wctx.Process runs synchronously to completion before streaming starts,
// there is no risk of Next outliving the whisper context: all segments are
// already materialized.
type segmentStream struct {
	segments []string
	idx      int
	done     bool
}

// Next implements engine.ResultStream.
func (s *segmentStream) Next(ctx context.Context) (engine.Result, bool) {
	if s.done {
		return engine.Result{}, false
	}

	select {
	case <-ctx.Done():
		s.done = true
		return engine.Result{}, false
	default:
	}

	if s.idx >= len(s.segments) {
		s.done = true
		return engine.Result{Partial: false}, true
	}

	text := s.segments[s.idx]
	s.idx++
	return engine.Result{Outputs: map[string]any{"text": text}, Partial: true}, true
}

// pcmToFloat32Mono converts s16le PCM bytes to float32 samples in [-1, 1].
func pcmToFloat32Mono(pcm []byte) []float32 {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}

package sherpa

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/logging"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(logging.NewLogrusAdapter(logrus.New()))
	require.NoError(t, err)
	return r.(*Runner)
}

func TestCapabilities(t *testing.T) {
	r := newTestRunner(t)
	assert.ElementsMatch(t, []engine.Capability{engine.CapabilityASR, engine.CapabilityTTS}, r.Capabilities())
}

func TestRun_NotLoadedAudioReturnsError(t *testing.T) {
	r := newTestRunner(t)
	result := r.Run(context.Background(), engine.Request{Inputs: map[string]any{"audio": make([]byte, 100)}})
	require.NotNil(t, result.Error)
	assert.Equal(t, engine.ErrCodeNotLoaded, result.Error.Code)
}

func TestRun_SynthesizeDoesNotRequireLoad(t *testing.T) {
	r := newTestRunner(t)
	result := r.Run(context.Background(), engine.Request{Inputs: map[string]any{"text": "hello world"}})
	require.Nil(t, result.Error)
	audio, ok := result.OutputAudio()
	require.True(t, ok)
	assert.NotEmpty(t, audio)
	assert.Equal(t, "opus", result.Metadata["codec"])
}

func TestRun_MissingInputsReturnsError(t *testing.T) {
	r := newTestRunner(t)
	result := r.Run(context.Background(), engine.Request{})
	require.NotNil(t, result.Error)
	assert.Equal(t, engine.ErrCodeInvalidInput, result.Error.Code)
}

func TestRunAsFlow_TextInputUnsupported(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.RunAsFlow(context.Background(), engine.Request{Inputs: map[string]any{"text": "hi"}})
	assert.ErrorIs(t, err, engine.ErrStreamingUnsupported)
}

func TestRunAsFlow_MissingInputsUnsupported(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.RunAsFlow(context.Background(), engine.Request{})
	assert.ErrorIs(t, err, engine.ErrStreamingUnsupported)
}

func TestRunAsFlow_NotLoadedAudioReturnsError(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.RunAsFlow(context.Background(), engine.Request{Inputs: map[string]any{"audio": make([]byte, 100)}})
	require.Error(t, err)
	var runnerErr *engine.RunnerError
	require.ErrorAs(t, err, &runnerErr)
	assert.Equal(t, engine.ErrCodeNotLoaded, runnerErr.Code)
}

func TestSegmentStream_EmitsPartialsThenTerminal(t *testing.T) {
	s := &segmentStream{segments: []string{"hello", "world"}}

	r1, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.True(t, r1.Partial)
	text, _ := r1.OutputText()
	assert.Equal(t, "hello", text)

	r2, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.True(t, r2.Partial)
	text2, _ := r2.OutputText()
	assert.Equal(t, "world", text2)

	terminal, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.False(t, terminal.Partial)
	assert.Nil(t, terminal.Error)

	_, ok = s.Next(context.Background())
	assert.False(t, ok)
}

func TestSegmentStream_EmptySegmentsYieldsOnlyTerminal(t *testing.T) {
	s := &segmentStream{}
	r, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.False(t, r.Partial)
	_, ok = s.Next(context.Background())
	assert.False(t, ok)
}

func TestSegmentStream_CancelledContextEndsStream(t *testing.T) {
	s := &segmentStream{segments: []string{"hello"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := s.Next(ctx)
	assert.False(t, ok)
}

func TestValidateParameters(t *testing.T) {
	r := newTestRunner(t)
	assert.True(t, r.ValidateParameters(map[string]any{"voice_pitch_hz": 200.0}).Valid)
	assert.False(t, r.ValidateParameters(map[string]any{"voice_pitch_hz": 10.0}).Valid)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, wordCount(""))
	assert.Equal(t, 1, wordCount("hello"))
	assert.Equal(t, 3, wordCount("  hello   world  foo"))
}

func TestSynthesizeWaveform_ProducesInterleavedStereoSamples(t *testing.T) {
	pcm := synthesizeWaveform("hi there", defaultPitchHz)
	assert.NotEmpty(t, pcm)
	assert.Equal(t, 0, len(pcm)%2)
}

func TestPcmToFloat32Mono(t *testing.T) {
	assert.Nil(t, pcmToFloat32Mono(nil))
	samples := pcmToFloat32Mono([]byte{0, 0, 0xff, 0x7f})
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.0, samples[0], 0.001)
}

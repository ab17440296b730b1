package sherpa

import (
	"context"
	"fmt"
	"math"

	"layeh.com/gopus"

	"github.com/edgerunner/engine/pkg/engine"
)

// Opus framing matches glyphoxa's pkg/audio/discord package: 48 kHz
// stereo, 20 ms frames.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	opusFrameSize   = opusSampleRate * opusFrameSizeMs / 1000 // 960

	defaultPitchHz     = 220.0
	defaultUtteranceMs = 600
)

// synthesize produces a tone-burst waveform standing in for a neural
// vocoder (one short tone per word of the request's "text" input,
// silence between words) and Opus-encodes it through layeh.com/gopus.
func (r *Runner) synthesize(ctx context.Context, request engine.Request) engine.Result {
	text, ok := request.InputText()
	if !ok {
		return engine.ErrorResult(engine.NewInvalidInputError("sherpa: \"text\" input is empty"))
	}

	pitch := request.ParamFloat64("voice_pitch_hz", defaultPitchHz)

	if err := ctx.Err(); err != nil {
		return engine.ErrorResult(engine.NewProcessingError("sherpa: context cancelled before synthesis", true, err))
	}

	pcm := synthesizeWaveform(text, pitch)

	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return engine.ErrorResult(engine.NewProcessingError("sherpa: create opus encoder failed", true, err))
	}

	opusData, err := encodeFrames(enc, pcm)
	if err != nil {
		return engine.ErrorResult(engine.NewProcessingError("sherpa: opus encode failed", true, err))
	}

	return engine.Result{
		Outputs:  map[string]any{"audio": opusData},
		Metadata: map[string]any{"sample_rate": opusSampleRate, "channels": opusChannels, "codec": "opus"},
		Partial:  false,
	}
}

// synthesizeWaveform generates one short sine-wave tone per word of text,
// separated by silence, as interleaved stereo int16 PCM samples.
func synthesizeWaveform(text string, pitchHz float64) []int16 {
	words := wordCount(text)
	if words == 0 {
		words = 1
	}
	totalSamples := opusSampleRate * defaultUtteranceMs / 1000
	pcm := make([]int16, totalSamples*opusChannels)

	samplesPerWord := totalSamples / words
	const amplitude = 8000

	for i := 0; i < totalSamples; i++ {
		wordIndex := i / samplesPerWord
		withinWord := i % samplesPerWord
		// Leave a trailing silence gap within each word's slot.
		var sample int16
		if withinWord < samplesPerWord*3/4 {
			freq := pitchHz * (1 + 0.05*float64(wordIndex%3))
			sample = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/opusSampleRate))
		}
		pcm[i*opusChannels] = sample
		pcm[i*opusChannels+1] = sample
	}
	return pcm
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

// encodeFrames encodes pcm (interleaved stereo int16) into consecutive
// Opus packets of opusFrameSize samples per channel, concatenated with a
// 2-byte big-endian length prefix per packet so a single decoder can
// split the stream back into frames.
func encodeFrames(enc *gopus.Encoder, pcm []int16) ([]byte, error) {
	var out []byte
	frameSamples := opusFrameSize * opusChannels

	for offset := 0; offset < len(pcm); offset += frameSamples {
		end := offset + frameSamples
		frame := pcm[offset:min(end, len(pcm))]
		if len(frame) < frameSamples {
			padded := make([]int16, frameSamples)
			copy(padded, frame)
			frame = padded
		}

		packet, err := enc.Encode(frame, opusFrameSize, len(frame)*2)
		if err != nil {
			return nil, fmt.Errorf("sherpa: encode frame: %w", err)
		}

		length := len(packet)
		out = append(out, byte(length>>8), byte(length))
		out = append(out, packet...)
	}
	return out, nil
}

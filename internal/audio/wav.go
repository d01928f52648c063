package audio

import (
	"errors"
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Static errors for WAV file handling.
var (
	// ErrNotWAV is returned when the input is not a valid WAV file.
	ErrNotWAV = errors.New("audio: not a valid WAV file")
	// ErrUnsupportedBitDepth is returned for bit depths other than 16 or 24.
	ErrUnsupportedBitDepth = errors.New("audio: bit depth must be 16 or 24")
)

// ReadWAV decodes a WAV file into a mono Clip.
// Multi-channel input is downmixed by averaging channels; the pipeline
// normally receives mono already (the transcoder enforces it), so the
// downmix is a safety net for files that bypass ingest.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	scale := sampleScale(buf.SourceBitDepth)
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float64(channels)
	}

	return &Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// WriteWAV encodes mono samples as a PCM WAV file at the given path.
func WriteWAV(path string, samples []float64, sampleRate, bitDepth int) error {
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("%w: got %d", ErrUnsupportedBitDepth, bitDepth)
	}

	f, err := os.Create(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	scale := sampleScale(bitDepth)
	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		data[i] = int(s * (scale - 1))
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("close wav encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

// sampleScale returns the full-scale divisor for a PCM bit depth.
// Unknown depths fall back to 16-bit, matching go-audio's default.
func sampleScale(bitDepth int) float64 {
	switch bitDepth {
	case 8:
		return 1 << 7
	case 24:
		return 1 << 23
	case 32:
		return 1 << 31
	default:
		return 1 << 15
	}
}

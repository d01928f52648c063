package vad

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/maauso/speechprep/internal/audio"
	"github.com/maauso/speechprep/internal/timeline"
)

// Static errors for the Silero detector.
var (
	// ErrModelPathRequired is returned when no ONNX model path is configured.
	ErrModelPathRequired = errors.New("vad: silero model path is required")
	// ErrSampleRate is returned when the clip is not at the model's rate.
	ErrSampleRate = errors.New("vad: silero requires 16 kHz mono input")
)

// sileroSampleRate is the only rate the Silero v5 model accepts.
const sileroSampleRate = 16000

// SileroConfig configures the Silero VAD adapter.
type SileroConfig struct {
	// ModelPath points at the silero_vad ONNX model file.
	ModelPath string
	// Threshold is the speech probability threshold in [0, 1].
	Threshold float64
	// MinSpeechDuration drops detections shorter than this many seconds.
	MinSpeechDuration float64
	// MinSilenceDuration is the silence the model requires before ending a
	// speech segment, in seconds.
	MinSilenceDuration float64
}

// Silero runs the Silero VAD model over a clip. A fresh detector session is
// created per call: sessions are stateful and not safe for concurrent use,
// and the model load is cheap relative to a batch file.
type Silero struct {
	cfg SileroConfig
}

// NewSilero creates a Silero VAD adapter.
func NewSilero(cfg SileroConfig) (*Silero, error) {
	if cfg.ModelPath == "" {
		return nil, ErrModelPathRequired
	}
	return &Silero{cfg: cfg}, nil
}

// Frames implements Detector. The clip must be 16 kHz mono; the ingest
// transcoder produces the analysis copy at that rate.
func (s *Silero) Frames(ctx context.Context, clip *audio.Clip) ([]timeline.SpeechFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("vad: context cancelled: %w", err)
	}
	if clip.SampleRate != sileroSampleRate {
		return nil, fmt.Errorf("%w: got %d Hz", ErrSampleRate, clip.SampleRate)
	}
	dur := clip.Duration()
	if dur <= 0 {
		return nil, nil
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            s.cfg.ModelPath,
		SampleRate:           sileroSampleRate,
		Threshold:            float32(s.cfg.Threshold),
		MinSilenceDurationMs: int(s.cfg.MinSilenceDuration * 1000),
	})
	if err != nil {
		return nil, fmt.Errorf("vad: create silero detector: %w", err)
	}
	defer func() { _ = det.Destroy() }()

	pcm := make([]float32, len(clip.Samples))
	for i, v := range clip.Samples {
		pcm[i] = float32(v)
	}

	segs, err := det.Detect(pcm)
	if err != nil {
		return nil, fmt.Errorf("vad: silero detect: %w", err)
	}

	spans := make([]timeline.TimeSpan, 0, len(segs))
	for _, seg := range segs {
		end := seg.SpeechEndAt
		if end <= 0 {
			// A zero end marks speech running to the end of the clip.
			end = dur
		}
		span := timeline.TimeSpan{Start: seg.SpeechStartAt, End: end}
		if span.Duration() < s.cfg.MinSpeechDuration {
			continue
		}
		spans = append(spans, span)
	}
	return SpansToFrames(spans, dur), nil
}

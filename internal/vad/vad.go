// Package vad produces speech/silence timelines for decoded audio. The
// primary implementation wraps the Silero VAD model; a short-time-energy
// detector serves as a model-free fallback. Both emit frames covering the
// whole clip so the segmenter sees silence gaps explicitly.
package vad

import (
	"context"
	"math"
	"sort"

	"github.com/maauso/speechprep/internal/audio"
	"github.com/maauso/speechprep/internal/timeline"
)

// Detector classifies a clip into an ordered speech/silence timeline.
type Detector interface {
	// Frames returns frames covering the full clip in timeline order.
	Frames(ctx context.Context, clip *audio.Clip) ([]timeline.SpeechFrame, error)
}

// WholeFile returns a single speech frame spanning the entire clip.
// Used when voice activity detection is disabled.
func WholeFile(clip *audio.Clip) []timeline.SpeechFrame {
	dur := clip.Duration()
	if dur <= 0 {
		return nil
	}
	return []timeline.SpeechFrame{{
		Span:     timeline.TimeSpan{Start: 0, End: dur},
		IsSpeech: true,
	}}
}

// EnergyConfig configures the model-free energy detector.
type EnergyConfig struct {
	// Threshold in [0, 1] scales the speech/noise decision boundary; higher
	// values are more conservative about calling a frame speech.
	Threshold float64
	// MinSpeechDuration drops speech runs shorter than this many seconds.
	MinSpeechDuration float64
	// MinSilenceDuration bridges silence runs shorter than this many seconds
	// into the surrounding speech.
	MinSilenceDuration float64
}

// Short-time analysis parameters for the energy detector.
const (
	energyWinSec = 0.020
	energyHopSec = 0.010
)

// EnergyDetector classifies frames by comparing short-time RMS against a
// noise floor estimated from the clip itself (20th percentile of frame RMS).
type EnergyDetector struct {
	cfg EnergyConfig
}

// NewEnergyDetector creates an energy-based detector.
func NewEnergyDetector(cfg EnergyConfig) *EnergyDetector {
	return &EnergyDetector{cfg: cfg}
}

// Frames implements Detector.
func (d *EnergyDetector) Frames(_ context.Context, clip *audio.Clip) ([]timeline.SpeechFrame, error) {
	dur := clip.Duration()
	if dur <= 0 {
		return nil, nil
	}

	rms := frameRMS(clip.Samples, clip.SampleRate)
	if len(rms) == 0 {
		// Clip shorter than one analysis window: classify it as one frame.
		speech := audio.RMS(clip.Samples) > 0
		return []timeline.SpeechFrame{{
			Span:     timeline.TimeSpan{Start: 0, End: dur},
			IsSpeech: speech,
		}}, nil
	}

	noise := percentile(rms, 20)
	threshold := noise * (1.2 + d.cfg.Threshold)
	if threshold <= 0 {
		threshold = math.SmallestNonzeroFloat64
	}

	mask := make([]bool, len(rms))
	for i, r := range rms {
		mask[i] = r > threshold
	}

	spans := maskToSpans(mask, dur)
	spans = bridgeShortSilence(spans, d.cfg.MinSilenceDuration)
	spans = dropShortSpeech(spans, d.cfg.MinSpeechDuration)
	return SpansToFrames(spans, dur), nil
}

// maskToSpans collapses the per-hop mask into speech spans.
func maskToSpans(mask []bool, totalDur float64) []timeline.TimeSpan {
	var spans []timeline.TimeSpan
	start := -1.0
	for i, speech := range mask {
		t := float64(i) * energyHopSec
		if speech && start < 0 {
			start = t
		}
		if !speech && start >= 0 {
			spans = append(spans, timeline.TimeSpan{Start: start, End: t + energyWinSec})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, timeline.TimeSpan{Start: start, End: totalDur})
	}
	return clampSpans(spans, totalDur)
}

// bridgeShortSilence merges spans separated by less silence than minGap.
func bridgeShortSilence(spans []timeline.TimeSpan, minGap float64) []timeline.TimeSpan {
	if len(spans) < 2 || minGap <= 0 {
		return spans
	}
	merged := []timeline.TimeSpan{spans[0]}
	for _, s := range spans[1:] {
		prev := &merged[len(merged)-1]
		if s.Start-prev.End < minGap {
			if s.End > prev.End {
				prev.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// dropShortSpeech removes spans shorter than minDur.
func dropShortSpeech(spans []timeline.TimeSpan, minDur float64) []timeline.TimeSpan {
	if minDur <= 0 {
		return spans
	}
	out := spans[:0]
	for _, s := range spans {
		if s.Duration() >= minDur {
			out = append(out, s)
		}
	}
	return out
}

// SpansToFrames converts sorted speech spans into a frame sequence covering
// [0, totalDur], with explicit silence frames in the gaps.
func SpansToFrames(spans []timeline.TimeSpan, totalDur float64) []timeline.SpeechFrame {
	spans = clampSpans(spans, totalDur)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	var frames []timeline.SpeechFrame
	cursor := 0.0
	for _, s := range spans {
		if s.Start > cursor {
			frames = append(frames, timeline.SpeechFrame{
				Span: timeline.TimeSpan{Start: cursor, End: s.Start},
			})
		}
		if s.End <= cursor {
			continue
		}
		if s.Start < cursor {
			s.Start = cursor
		}
		frames = append(frames, timeline.SpeechFrame{Span: s, IsSpeech: true})
		cursor = s.End
	}
	if cursor < totalDur {
		frames = append(frames, timeline.SpeechFrame{
			Span: timeline.TimeSpan{Start: cursor, End: totalDur},
		})
	}
	return frames
}

func clampSpans(spans []timeline.TimeSpan, totalDur float64) []timeline.TimeSpan {
	out := spans[:0]
	for _, s := range spans {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > totalDur {
			s.End = totalDur
		}
		if s.End > s.Start {
			out = append(out, s)
		}
	}
	return out
}

func frameRMS(samples []float64, sampleRate int) []float64 {
	if sampleRate <= 0 {
		return nil
	}
	win := int(energyWinSec * float64(sampleRate))
	hop := int(energyHopSec * float64(sampleRate))
	if win <= 0 || hop <= 0 || len(samples) < win {
		return nil
	}
	out := make([]float64, 0, 1+len(samples)/hop)
	for i := 0; i+win <= len(samples); i += hop {
		var sum float64
		for j := i; j < i+win; j++ {
			sum += samples[j] * samples[j]
		}
		out = append(out, math.Sqrt(sum/float64(win)))
	}
	return out
}

func percentile(xs []float64, p int) float64 {
	if len(xs) == 0 {
		return 0
	}
	tmp := append([]float64(nil), xs...)
	sort.Float64s(tmp)
	idx := int(math.Round(float64(p) / 100 * float64(len(tmp)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(tmp) {
		idx = len(tmp) - 1
	}
	return tmp[idx]
}

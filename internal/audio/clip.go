// Package audio provides in-memory audio buffers, WAV file I/O, and loudness
// normalization for the segment pipeline. All processing operates on mono
// float64 samples in [-1, 1].
package audio

import (
	"errors"
	"math"
)

// Static errors for audio operations.
var (
	// ErrEmptyClip is returned when an operation requires at least one sample.
	ErrEmptyClip = errors.New("audio: clip has no samples")
	// ErrInvalidSampleRate is returned when the sample rate is not positive.
	ErrInvalidSampleRate = errors.New("audio: sample rate must be positive")
)

// Clip is a decoded mono audio buffer.
type Clip struct {
	// Samples are normalized to [-1, 1].
	Samples []float64
	// SampleRate is the number of samples per second.
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Slice returns the samples covering [start, end) seconds.
// The bounds are clamped to the clip; an inverted or out-of-range window
// yields an empty slice. The returned slice aliases the clip's samples.
func (c *Clip) Slice(start, end float64) []float64 {
	if c.SampleRate <= 0 || len(c.Samples) == 0 {
		return nil
	}
	lo := int(start * float64(c.SampleRate))
	hi := int(end * float64(c.SampleRate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(c.Samples) {
		hi = len(c.Samples)
	}
	if lo >= hi {
		return nil
	}
	return c.Samples[lo:hi]
}

// RMS returns the root-mean-square level of the samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NormalizeLoudness scales samples toward targetLUFS and returns a new slice.
// Loudness is approximated from the RMS level (a K-weighted integrated
// measurement would require a full ITU-R BS.1770 filter chain); the result is
// clamped to [-1, 1] to prevent wrap-around distortion, matching the
// clip-after-normalize behavior of the ingest tooling.
func NormalizeLoudness(samples []float64, targetLUFS float64) []float64 {
	out := make([]float64, len(samples))
	rms := RMS(samples)
	if rms <= 0 {
		copy(out, samples)
		return out
	}

	current := 20 * math.Log10(rms)
	gain := math.Pow(10, (targetLUFS-current)/20)

	for i, s := range samples {
		v := s * gain
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

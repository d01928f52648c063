// Package quality evaluates candidate segments against configurable numeric
// thresholds. The filter is a pure function of a segment's samples and the
// thresholds: no shared state, safe to evaluate segments in any order or in
// parallel. Rejections are normal classification outcomes, not errors.
package quality

import (
	"github.com/maauso/speechprep/internal/segmenter"
)

// Reason classifies why a segment was rejected.
type Reason string

// Rejection reasons, in the order the checks run.
const (
	ReasonTooShort         Reason = "too_short"
	ReasonTooLong          Reason = "too_long"
	ReasonClipping         Reason = "clipping"
	ReasonLowSNR           Reason = "low_snr"
	ReasonInvalidFrequency Reason = "invalid_frequency"
	ReasonLowEnergy        Reason = "low_energy"
)

// Defaults for the quality thresholds.
const (
	DefaultMinSNR            = 15.0 // dB
	DefaultMaxClippingRatio  = 0.01
	DefaultMinFrequency      = 80.0   // Hz
	DefaultMaxFrequency      = 8000.0 // Hz
	DefaultMinEnergyVariance = 1e-6
)

// Thresholds configures the quality checks.
type Thresholds struct {
	MinDuration       float64
	MaxDuration       float64
	MaxClippingRatio  float64
	MinSNR            float64
	MinFrequency      float64
	MaxFrequency      float64
	MinEnergyVariance float64
}

// DefaultThresholds returns the default quality thresholds, with the
// duration bounds matching the segmenter defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDuration:       segmenter.DefaultMinDuration,
		MaxDuration:       segmenter.DefaultMaxDuration,
		MaxClippingRatio:  DefaultMaxClippingRatio,
		MinSNR:            DefaultMinSNR,
		MinFrequency:      DefaultMinFrequency,
		MaxFrequency:      DefaultMaxFrequency,
		MinEnergyVariance: DefaultMinEnergyVariance,
	}
}

// Metrics holds the diagnostic measurements of one segment. All metrics are
// computed even when an early check already rejected the segment.
type Metrics struct {
	DurationSec       float64 `json:"duration_sec"`
	SNRdB             float64 `json:"snr_db"`
	ClippingRatio     float64 `json:"clipping_ratio"`
	EnergyVariance    float64 `json:"energy_variance"`
	DominantFrequency float64 `json:"dominant_frequency_hz"`
}

// Verdict is the immutable outcome of evaluating one segment.
type Verdict struct {
	Accepted bool    `json:"accepted"`
	Reason   Reason  `json:"reason,omitempty"`
	Metrics  Metrics `json:"metrics"`
}

// Filter applies the quality checks in a fixed order.
type Filter struct {
	thr Thresholds
}

// NewFilter creates a Filter with the given thresholds.
func NewFilter(thr Thresholds) *Filter {
	return &Filter{thr: thr}
}

// Evaluate runs the five checks against one candidate segment.
// The checks run in a fixed order and the first failure determines the
// rejection reason; metrics are always fully computed for diagnostics.
// Evaluating the same segment twice yields an identical verdict.
func (f *Filter) Evaluate(c segmenter.Candidate) Verdict {
	m := Metrics{
		DurationSec:       c.Duration(),
		ClippingRatio:     clippingRatio(c.Samples),
		SNRdB:             estimateSNR(c.Samples, c.SampleRate),
		EnergyVariance:    energyVariance(c.Samples, c.SampleRate),
		DominantFrequency: dominantFrequency(c.Samples, c.SampleRate),
	}

	v := Verdict{Metrics: m}
	switch {
	case m.DurationSec < f.thr.MinDuration:
		v.Reason = ReasonTooShort
	case m.DurationSec > f.thr.MaxDuration:
		v.Reason = ReasonTooLong
	case m.ClippingRatio > f.thr.MaxClippingRatio:
		v.Reason = ReasonClipping
	case m.SNRdB < f.thr.MinSNR:
		v.Reason = ReasonLowSNR
	case m.DominantFrequency < f.thr.MinFrequency || m.DominantFrequency > f.thr.MaxFrequency:
		v.Reason = ReasonInvalidFrequency
	case m.EnergyVariance < f.thr.MinEnergyVariance:
		v.Reason = ReasonLowEnergy
	default:
		v.Accepted = true
	}
	return v
}

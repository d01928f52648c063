package quality

import (
	"math"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Short-time analysis parameters shared by the metric estimators.
const (
	metricWinSec = 0.020
	metricHopSec = 0.010

	// clipCeiling is the normalized amplitude treated as the representable
	// ceiling; 16-bit PCM rounded through float lands slightly below 1.0.
	clipCeiling = 0.999

	// fftSize is the analysis frame for the dominant-frequency estimate.
	fftSize = 2048

	noiseFloorMin = 1e-9
)

// clippingRatio returns the fraction of samples at or beyond the amplitude
// ceiling.
func clippingRatio(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var clipped int
	for _, s := range samples {
		if math.Abs(s) >= clipCeiling {
			clipped++
		}
	}
	return float64(clipped) / float64(len(samples))
}

// estimateSNR approximates the signal-to-noise ratio in decibels.
// The speech level is taken as the 80th percentile of short-time RMS and the
// noise floor as the 20th percentile, a simple estimate that works well on
// segments mixing voiced frames with residual background.
func estimateSNR(samples []float64, sampleRate int) float64 {
	rms := frameRMS(samples, sampleRate)
	if len(rms) == 0 {
		return 0
	}

	noise := percentile(rms, 20)
	speech := percentile(rms, 80)
	if speech <= noiseFloorMin {
		return 0
	}
	if noise < noiseFloorMin {
		noise = noiseFloorMin
	}
	return 20 * math.Log10(speech/noise)
}

// energyVariance returns the variance of short-time energy across the
// segment. Flat signals (steady noise, silence misclassified as speech)
// produce values near zero.
func energyVariance(samples []float64, sampleRate int) float64 {
	rms := frameRMS(samples, sampleRate)
	if len(rms) < 2 {
		return 0
	}

	var mean float64
	energies := make([]float64, len(rms))
	for i, r := range rms {
		energies[i] = r * r
		mean += energies[i]
	}
	mean /= float64(len(energies))

	var variance float64
	for _, e := range energies {
		d := e - mean
		variance += d * d
	}
	return variance / float64(len(energies))
}

// dominantFrequency estimates the frequency bin carrying the most energy,
// averaged over Hann-windowed frames. Returns 0 when the segment is too
// short to analyze.
func dominantFrequency(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) == 0 {
		return 0
	}

	hop := fftSize / 2
	spectrum := make([]float64, fftSize/2)
	frames := 0

	for off := 0; off == 0 || off+fftSize <= len(samples); off += hop {
		frame := make([]float64, fftSize)
		copy(frame, samples[off:min(off+fftSize, len(samples))])
		window.Apply(frame, window.Hann)

		bins := fft.FFTReal(frame)
		for k := 1; k < fftSize/2; k++ {
			spectrum[k] += cmplxAbs(bins[k])
		}
		frames++
	}
	if frames == 0 {
		return 0
	}

	peak := 1
	for k := 2; k < len(spectrum); k++ {
		if spectrum[k] > spectrum[peak] {
			peak = k
		}
	}
	return float64(peak) * float64(sampleRate) / float64(fftSize)
}

// frameRMS computes short-time RMS over the segment.
func frameRMS(samples []float64, sampleRate int) []float64 {
	if sampleRate <= 0 {
		return nil
	}
	win := int(metricWinSec * float64(sampleRate))
	hop := int(metricHopSec * float64(sampleRate))
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

// percentile returns the p-th percentile (nearest rank) of xs.
func percentile(xs []float64, p int) float64 {
	if len(xs) == 0 {
		return 0
	}
	tmp := append([]float64(nil), xs...)
	sort.Float64s(tmp)
	if p <= 0 {
		return tmp[0]
	}
	if p >= 100 {
		return tmp[len(tmp)-1]
	}
	idx := int(math.Round(float64(p) / 100 * float64(len(tmp)-1)))
	return tmp[idx]
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

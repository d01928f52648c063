// Package segmenter partitions an annotated speech timeline into candidate
// segments. It cuts only at silence gaps of at least the configured pause
// threshold, never in the middle of detected speech, then applies the
// duration policy: short segments are merged forward or dropped, over-long
// segments are split at low-energy points.
package segmenter

import (
	"errors"
	"fmt"
	"math"

	"github.com/maauso/speechprep/internal/audio"
	"github.com/maauso/speechprep/internal/timeline"
)

// Defaults for the segmentation options.
const (
	DefaultMinDuration    = 1.0  // seconds
	DefaultMaxDuration    = 10.0 // seconds
	DefaultTargetDuration = 7.0  // seconds
	DefaultPauseThreshold = 0.3  // seconds
)

// cutSearchWindowSec bounds how far a split may deviate from the ideal cut
// point when searching for a low-energy sample window.
const cutSearchWindowSec = 0.5

// Short-time energy window used to locate low-energy cut points.
const (
	energyWinSec = 0.020
	energyHopSec = 0.010
)

// ErrInvalidOptions is returned when the segmentation options are inconsistent.
var ErrInvalidOptions = errors.New("segmenter: invalid options")

// Options configures the segmentation duration policy.
type Options struct {
	// MinDuration is the minimum accepted segment length in seconds.
	MinDuration float64
	// MaxDuration is the maximum accepted segment length in seconds.
	MaxDuration float64
	// TargetDuration is the preferred segment length. Informational for now;
	// splitting aims at equal pieces below MaxDuration.
	TargetDuration float64
	// PauseThreshold is the minimum silence gap, in seconds, that closes the
	// running segment.
	PauseThreshold float64
	// MergeShortSegments concatenates a too-short segment with the next one
	// (bridging the silence gap) instead of dropping it.
	MergeShortSegments bool
}

// DefaultOptions returns the default segmentation options.
func DefaultOptions() Options {
	return Options{
		MinDuration:        DefaultMinDuration,
		MaxDuration:        DefaultMaxDuration,
		TargetDuration:     DefaultTargetDuration,
		PauseThreshold:     DefaultPauseThreshold,
		MergeShortSegments: true,
	}
}

// Validate checks that the options are internally consistent.
func (o Options) Validate() error {
	if o.MinDuration <= 0 {
		return fmt.Errorf("%w: min duration must be positive", ErrInvalidOptions)
	}
	if o.MaxDuration <= o.MinDuration {
		return fmt.Errorf("%w: max duration must exceed min duration", ErrInvalidOptions)
	}
	if o.PauseThreshold <= 0 {
		return fmt.Errorf("%w: pause threshold must be positive", ErrInvalidOptions)
	}
	if o.TargetDuration != 0 && (o.TargetDuration < o.MinDuration || o.TargetDuration > o.MaxDuration) {
		return fmt.Errorf("%w: target duration must lie within [min, max]", ErrInvalidOptions)
	}
	return nil
}

// Candidate is a segment cut from the timeline, carrying the audio samples
// covering its span. It is consumed by the quality filter and discarded.
type Candidate struct {
	Span       timeline.TimeSpan
	Speaker    string
	Samples    []float64
	SampleRate int
}

// Duration returns the candidate length in seconds.
func (c Candidate) Duration() float64 {
	return c.Span.Duration()
}

// Result holds the outcome of segmenting one file. DroppedShort contains
// segments below the minimum duration that could not be merged; the caller
// accounts for them as too-short rejections.
type Result struct {
	Candidates   []Candidate
	DroppedShort []Candidate
}

// Segmenter partitions speech timelines according to its options.
type Segmenter struct {
	opts Options
}

// New creates a Segmenter, validating the options.
func New(opts Options) (*Segmenter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{opts: opts}, nil
}

// rawSegment is an uncut run of speech frames between qualifying pauses.
type rawSegment struct {
	span   timeline.TimeSpan
	frames []timeline.SpeechFrame
}

// Segment partitions the ordered frame sequence of one file.
// A file with zero speech frames yields an empty result, not an error.
func (s *Segmenter) Segment(frames []timeline.SpeechFrame, clip *audio.Clip) Result {
	raw := s.cutAtPauses(frames)
	raw = s.mergeShort(raw)

	var res Result
	for _, seg := range raw {
		switch {
		case seg.span.Duration() < s.opts.MinDuration:
			res.DroppedShort = append(res.DroppedShort, s.candidate(seg.span, seg.frames, clip))
		case seg.span.Duration() > s.opts.MaxDuration:
			for _, span := range s.split(seg.span, clip) {
				res.Candidates = append(res.Candidates, s.candidate(span, seg.frames, clip))
			}
		default:
			res.Candidates = append(res.Candidates, s.candidate(seg.span, seg.frames, clip))
		}
	}
	return res
}

// cutAtPauses accumulates contiguous speech into running segments, closing a
// segment only when the accumulated silence reaches the pause threshold.
// Shorter silences are bridged into the running segment.
func (s *Segmenter) cutAtPauses(frames []timeline.SpeechFrame) []rawSegment {
	var (
		segments []rawSegment
		current  *rawSegment
		silence  float64
	)

	for _, f := range frames {
		if !f.IsSpeech {
			if current != nil {
				silence += f.Duration()
				if silence >= s.opts.PauseThreshold {
					segments = append(segments, *current)
					current = nil
					silence = 0
				}
			}
			continue
		}

		if current == nil {
			current = &rawSegment{span: f.Span}
		} else if f.Span.End > current.span.End {
			// Bridge any silence shorter than the pause threshold.
			current.span.End = f.Span.End
		}
		current.frames = append(current.frames, f)
		silence = 0
	}

	if current != nil {
		segments = append(segments, *current)
	}
	return segments
}

// mergeShort concatenates too-short segments with their successor, bridging
// the silence gap, until the merged segment reaches the minimum duration or
// no successor remains. Disabled segments pass through and are dropped later.
func (s *Segmenter) mergeShort(raw []rawSegment) []rawSegment {
	if !s.opts.MergeShortSegments || len(raw) < 2 {
		return raw
	}

	var out []rawSegment
	i := 0
	for i < len(raw) {
		seg := raw[i]
		for seg.span.Duration() < s.opts.MinDuration && i+1 < len(raw) {
			next := raw[i+1]
			seg.span.End = next.span.End
			seg.frames = append(seg.frames, next.frames...)
			i++
		}
		out = append(out, seg)
		i++
	}
	return out
}

// split partitions an over-long span into the largest number of sub-spans no
// longer than MaxDuration each. Each cut is placed at the lowest-energy point
// within a window around the ideal (equal-division) cut, falling back to a
// hard cut at the window's upper bound when no energy data is available.
// The piece count is re-derived from the remaining tail on every iteration so
// early cuts cannot push the final piece past MaxDuration.
func (s *Segmenter) split(span timeline.TimeSpan, clip *audio.Clip) []timeline.TimeSpan {
	var spans []timeline.TimeSpan
	start := span.Start
	for span.End-start > s.opts.MaxDuration {
		remaining := span.End - start
		pieces := int(math.Ceil(remaining / s.opts.MaxDuration))
		ideal := remaining / float64(pieces)

		idealCut := start + ideal
		lo := idealCut - cutSearchWindowSec
		hi := idealCut + cutSearchWindowSec
		if hi > start+s.opts.MaxDuration {
			hi = start + s.opts.MaxDuration
		}
		// The tail after this cut must still fit its remaining pieces.
		if floor := span.End - float64(pieces-1)*s.opts.MaxDuration; lo < floor {
			lo = floor
		}
		if lo < start+s.opts.MinDuration {
			lo = start + s.opts.MinDuration
		}

		cut, ok := lowestEnergyPoint(clip, lo, hi)
		if !ok {
			cut = hi
		}
		spans = append(spans, timeline.TimeSpan{Start: start, End: cut})
		start = cut
	}
	spans = append(spans, timeline.TimeSpan{Start: start, End: span.End})
	return spans
}

// lowestEnergyPoint scans [lo, hi] with short-time RMS windows and returns
// the center of the quietest window. ok is false when the range holds no
// complete window.
func lowestEnergyPoint(clip *audio.Clip, lo, hi float64) (float64, bool) {
	if clip == nil || clip.SampleRate <= 0 || hi-lo < energyWinSec {
		return 0, false
	}

	best := math.Inf(1)
	bestAt := 0.0
	found := false
	for t := lo; t+energyWinSec <= hi; t += energyHopSec {
		win := clip.Slice(t, t+energyWinSec)
		if len(win) == 0 {
			continue
		}
		if rms := audio.RMS(win); rms < best {
			best = rms
			bestAt = t + energyWinSec/2
			found = true
		}
	}
	return bestAt, found
}

// candidate builds a Candidate for a final span, tagging it with the
// duration-weighted majority speaker of the frames overlapping the span.
func (s *Segmenter) candidate(span timeline.TimeSpan, frames []timeline.SpeechFrame, clip *audio.Clip) Candidate {
	c := Candidate{
		Span:    span,
		Speaker: majoritySpeaker(span, frames),
	}
	if clip != nil {
		c.Samples = clip.Slice(span.Start, span.End)
		c.SampleRate = clip.SampleRate
	}
	return c
}

// majoritySpeaker votes the speaker label by overlap duration with the span.
// Frames without a label do not vote; ties resolve to the first-seen label.
func majoritySpeaker(span timeline.TimeSpan, frames []timeline.SpeechFrame) string {
	weights := make(map[string]float64)
	var best string
	var bestWeight float64
	for _, f := range frames {
		if f.Speaker == "" {
			continue
		}
		overlap := span.Overlap(f.Span)
		if overlap <= 0 {
			continue
		}
		weights[f.Speaker] += overlap
		if weights[f.Speaker] > bestWeight {
			bestWeight = weights[f.Speaker]
			best = f.Speaker
		}
	}
	return best
}

// Package timeline provides the data model for annotated speech timelines.
// A timeline is an ordered sequence of frames produced by VAD and optionally
// annotated with speaker labels by diarization. Frames are immutable once
// received; downstream stages only read them.
package timeline

import (
	"errors"
	"fmt"
)

// ErrInvalidSpan is returned when a span's start is not strictly before its end.
var ErrInvalidSpan = errors.New("timeline: span start must be before end")

// TimeSpan is a contiguous interval on the audio timeline, in seconds.
type TimeSpan struct {
	Start float64
	End   float64
}

// NewTimeSpan creates a TimeSpan, validating that start < end.
func NewTimeSpan(start, end float64) (TimeSpan, error) {
	if start >= end {
		return TimeSpan{}, fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidSpan, start, end)
	}
	return TimeSpan{Start: start, End: end}, nil
}

// Duration returns the span length in seconds.
func (s TimeSpan) Duration() float64 {
	return s.End - s.Start
}

// Overlap returns the duration of the intersection with another span,
// or zero if they do not intersect.
func (s TimeSpan) Overlap(o TimeSpan) float64 {
	start := s.Start
	if o.Start > start {
		start = o.Start
	}
	end := s.End
	if o.End < end {
		end = o.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// SpeechFrame is one annotated frame on the timeline.
// Speaker is empty when diarization is disabled or no speaker was attributed.
type SpeechFrame struct {
	Span     TimeSpan
	Speaker  string
	IsSpeech bool
}

// Duration returns the frame length in seconds.
func (f SpeechFrame) Duration() float64 {
	return f.Span.Duration()
}

// SpeechDuration sums the durations of all speech frames in the sequence.
func SpeechDuration(frames []SpeechFrame) float64 {
	var total float64
	for _, f := range frames {
		if f.IsSpeech {
			total += f.Duration()
		}
	}
	return total
}

// Speakers returns the distinct non-empty speaker labels present in the
// sequence, in first-seen order.
func Speakers(frames []SpeechFrame) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range frames {
		if f.Speaker == "" {
			continue
		}
		if _, ok := seen[f.Speaker]; ok {
			continue
		}
		seen[f.Speaker] = struct{}{}
		out = append(out, f.Speaker)
	}
	return out
}

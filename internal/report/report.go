// Package report accumulates per-file processing reports and merges them into
// a batch summary. Merging is a plain reduction over counts and metric sums;
// finalization is idempotent and never discards a per-file report.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/maauso/speechprep/internal/quality"
)

// QualityStats summarizes the quality metrics of a report's segments.
// Averages cover accepted segments; ClippingRate averages the clipping ratio
// across every evaluated segment.
type QualityStats struct {
	AvgSNR              float64 `json:"avg_snr"`
	MedianSNR           float64 `json:"median_snr"`
	AvgDuration         float64 `json:"avg_duration"`
	ClippingRate        float64 `json:"clipping_rate"`
	UsableAudioDuration float64 `json:"usable_audio_duration"`
}

// FileReport is the finalized processing report for one input file.
type FileReport struct {
	InputFile           string         `json:"input_file"`
	TotalDuration       float64        `json:"total_duration"`
	SpeakersDetected    int            `json:"speakers_detected"`
	SegmentsGenerated   int            `json:"segments_generated"`
	SegmentsAccepted    int            `json:"segments_accepted"`
	SegmentsRejected    int            `json:"segments_rejected"`
	QualityStats        QualityStats   `json:"quality_stats"`
	SpeakerDistribution map[string]int `json:"speaker_distribution"`
	RejectionReasons    map[string]int `json:"rejection_reasons"`
}

// ProcessingError records a file that failed outside segment classification
// (unreadable input, external model failure). The batch continues past it.
type ProcessingError struct {
	InputFile string `json:"input_file"`
	Error     string `json:"error"`
}

// Summary is the finalized batch report.
type Summary struct {
	FilesProcessed      int               `json:"files_processed"`
	TotalDuration       float64           `json:"total_duration"`
	SpeakersDetected    int               `json:"speakers_detected"`
	SegmentsGenerated   int               `json:"segments_generated"`
	SegmentsAccepted    int               `json:"segments_accepted"`
	SegmentsRejected    int               `json:"segments_rejected"`
	QualityStats        QualityStats      `json:"quality_stats"`
	SpeakerDistribution map[string]int    `json:"speaker_distribution"`
	RejectionReasons    map[string]int    `json:"rejection_reasons"`
	ProcessingErrors    []ProcessingError `json:"processing_errors"`
	Files               []FileReport      `json:"files"`
}

// Collector builds the report for a single input file. It is not safe for
// concurrent use; each file gets its own collector.
type Collector struct {
	inputFile     string
	totalDuration float64
	speakers      map[string]struct{}

	generated int
	accepted  int
	rejected  int

	snrs         []float64 // accepted segments only
	acceptedDur  float64
	clippingSum  float64
	speakerDist  map[string]int
	rejectionFor map[string]int
}

// NewCollector creates a collector for one input file.
func NewCollector(inputFile string, totalDuration float64) *Collector {
	return &Collector{
		inputFile:     inputFile,
		totalDuration: totalDuration,
		speakers:      make(map[string]struct{}),
		speakerDist:   make(map[string]int),
		rejectionFor:  make(map[string]int),
	}
}

// AddVerdict records the verdict for one evaluated segment.
func (c *Collector) AddVerdict(speaker string, v quality.Verdict) {
	c.generated++
	c.clippingSum += v.Metrics.ClippingRatio
	if speaker != "" {
		c.speakers[speaker] = struct{}{}
	}

	if v.Accepted {
		c.accepted++
		c.acceptedDur += v.Metrics.DurationSec
		c.snrs = append(c.snrs, v.Metrics.SNRdB)
		c.speakerDist[speakerKey(speaker)]++
		return
	}
	c.rejected++
	c.rejectionFor[string(v.Reason)]++
}

// AddDropped records a segment the segmenter dropped before evaluation.
func (c *Collector) AddDropped(reason quality.Reason) {
	c.generated++
	c.rejected++
	c.rejectionFor[string(reason)]++
}

// SNRs returns the SNR values of the accepted segments, for batch-level
// statistics.
func (c *Collector) SNRs() []float64 {
	return append([]float64(nil), c.snrs...)
}

// Report finalizes the per-file report. Calling it repeatedly on the same
// accumulated state yields identical output.
func (c *Collector) Report() FileReport {
	r := FileReport{
		InputFile:           c.inputFile,
		TotalDuration:       c.totalDuration,
		SpeakersDetected:    len(c.speakers),
		SegmentsGenerated:   c.generated,
		SegmentsAccepted:    c.accepted,
		SegmentsRejected:    c.rejected,
		SpeakerDistribution: copyCounts(c.speakerDist),
		RejectionReasons:    copyCounts(c.rejectionFor),
	}
	r.QualityStats = QualityStats{
		AvgSNR:              mean(c.snrs),
		MedianSNR:           median(c.snrs),
		UsableAudioDuration: c.acceptedDur,
	}
	if c.accepted > 0 {
		r.QualityStats.AvgDuration = c.acceptedDur / float64(c.accepted)
	}
	if c.generated > 0 {
		r.QualityStats.ClippingRate = c.clippingSum / float64(c.generated)
	}
	return r
}

// Aggregator merges per-file reports into a batch summary. Adds are
// serialized by a mutex; the workers' only shared state is this reduction.
type Aggregator struct {
	mu     sync.Mutex
	files  []FileReport
	errors []ProcessingError

	snrs        []float64
	clippingSum float64
}

// NewAggregator creates an empty batch aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add merges a finalized per-file report into the batch state.
func (a *Aggregator) Add(r FileReport, segmentSNRs []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files = append(a.files, r)
	a.snrs = append(a.snrs, segmentSNRs...)
	a.clippingSum += r.QualityStats.ClippingRate * float64(r.SegmentsGenerated)
}

// AddError records a file-level processing failure.
func (a *Aggregator) AddError(inputFile string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, ProcessingError{InputFile: inputFile, Error: err.Error()})
}

// Summary finalizes the batch report. It reads the accumulated state without
// mutating it, so repeated calls produce identical summaries.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	files := make([]FileReport, len(a.files))
	copy(files, a.files)
	sort.Slice(files, func(i, j int) bool { return files[i].InputFile < files[j].InputFile })

	s := Summary{
		FilesProcessed:      len(files),
		SpeakerDistribution: make(map[string]int),
		RejectionReasons:    make(map[string]int),
		ProcessingErrors:    append([]ProcessingError(nil), a.errors...),
		Files:               files,
	}

	speakers := make(map[string]struct{})
	for _, f := range files {
		s.TotalDuration += f.TotalDuration
		s.SegmentsGenerated += f.SegmentsGenerated
		s.SegmentsAccepted += f.SegmentsAccepted
		s.SegmentsRejected += f.SegmentsRejected
		s.QualityStats.UsableAudioDuration += f.QualityStats.UsableAudioDuration
		for speaker, n := range f.SpeakerDistribution {
			s.SpeakerDistribution[speaker] += n
			if speaker != speakerUnlabeled {
				speakers[speaker] = struct{}{}
			}
		}
		for reason, n := range f.RejectionReasons {
			s.RejectionReasons[reason] += n
		}
	}
	s.SpeakersDetected = len(speakers)

	s.QualityStats.AvgSNR = mean(a.snrs)
	s.QualityStats.MedianSNR = median(a.snrs)
	if s.SegmentsAccepted > 0 {
		s.QualityStats.AvgDuration = s.QualityStats.UsableAudioDuration / float64(s.SegmentsAccepted)
	}
	if s.SegmentsGenerated > 0 {
		s.QualityStats.ClippingRate = a.clippingSum / float64(s.SegmentsGenerated)
	}
	return s
}

// WriteJSON writes the finalized summary as indented JSON.
func (a *Aggregator) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.Summary()); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// speakerUnlabeled is the distribution bucket for segments with no speaker
// attribution (diarization disabled).
const speakerUnlabeled = "unlabeled"

func speakerKey(speaker string) string {
	if speaker == "" {
		return speakerUnlabeled
	}
	return speaker
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	tmp := append([]float64(nil), xs...)
	sort.Float64s(tmp)
	mid := len(tmp) / 2
	if len(tmp)%2 == 1 {
		return tmp[mid]
	}
	return (tmp[mid-1] + tmp[mid]) / 2
}

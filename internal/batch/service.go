package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maauso/speechprep/internal/audio"
	"github.com/maauso/speechprep/internal/batch/id"
	"github.com/maauso/speechprep/internal/config"
	"github.com/maauso/speechprep/internal/diarize"
	"github.com/maauso/speechprep/internal/media"
	"github.com/maauso/speechprep/internal/quality"
	"github.com/maauso/speechprep/internal/report"
	"github.com/maauso/speechprep/internal/segmenter"
	"github.com/maauso/speechprep/internal/storage"
	"github.com/maauso/speechprep/internal/timeline"
	"github.com/maauso/speechprep/internal/vad"
)

// ErrNoInputs is returned when Run is called with no input files.
var ErrNoInputs = errors.New("batch: no input files")

// vadSampleRate is the rate the VAD analysis copy is prepared at.
const vadSampleRate = 16000

// reportFileName is the batch report's name inside the output tree.
const reportFileName = "processing_report.json"

// Service runs the processing pipeline over a batch of input files.
// Files are independent: each worker transcodes, segments, filters and
// exports its file alone, and only the report aggregation is shared.
type Service struct {
	transcoder media.Transcoder
	store      storage.Storage
	repo       Repository
	pipeline   config.Pipeline
	logger     *slog.Logger

	// detector is nil when voice activity detection is disabled.
	detector vad.Detector
	// diarizer is nil when speaker diarization is disabled.
	diarizer diarize.Client

	maxConcurrentFiles int
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxConcurrentFiles limits how many files are processed in parallel.
func WithMaxConcurrentFiles(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrentFiles = n
		}
	}
}

// WithDetector sets the voice activity detector.
func WithDetector(d vad.Detector) ServiceOption {
	return func(s *Service) {
		s.detector = d
	}
}

// WithDiarizer sets the speaker diarization client.
func WithDiarizer(c diarize.Client) ServiceOption {
	return func(s *Service) {
		s.diarizer = c
	}
}

// NewService creates a batch processing service.
func NewService(transcoder media.Transcoder, store storage.Storage, repo Repository, pipeline config.Pipeline, opts ...ServiceOption) *Service {
	s := &Service{
		transcoder:         transcoder,
		store:              store,
		repo:               repo,
		pipeline:           pipeline,
		logger:             slog.Default(),
		maxConcurrentFiles: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes every input file and returns the finalized batch summary.
// A file that fails is recorded as a processing error and never aborts the
// batch; Run itself fails only on empty input or an unwritable report.
func (s *Service) Run(ctx context.Context, inputs []string) (*report.Summary, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	runID := id.Generate()
	agg := report.NewAggregator()

	s.logger.Info("starting batch run",
		slog.String("run_id", runID),
		slog.Int("files", len(inputs)),
		slog.Int("max_concurrent", s.maxConcurrentFiles),
	)

	sem := make(chan struct{}, s.maxConcurrentFiles)
	var wg sync.WaitGroup
	for _, input := range inputs {
		job := NewFileJob(runID, input)
		if err := s.repo.Save(ctx, job); err != nil {
			return nil, fmt.Errorf("batch: save job: %w", err)
		}

		wg.Add(1)
		go func(job *FileJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			s.runFile(ctx, job, agg)
		}(job)
	}
	wg.Wait()

	summary := agg.Summary()
	s.logger.Info("batch run finished",
		slog.String("run_id", runID),
		slog.Int("files_processed", summary.FilesProcessed),
		slog.Int("segments_accepted", summary.SegmentsAccepted),
		slog.Int("segments_rejected", summary.SegmentsRejected),
		slog.Int("processing_errors", len(summary.ProcessingErrors)),
	)

	if s.pipeline.Output.GenerateReport {
		if err := s.writeReport(ctx, runID, agg); err != nil {
			return nil, err
		}
	}
	return &summary, nil
}

// runFile drives one job through the pipeline and records the outcome.
func (s *Service) runFile(ctx context.Context, job *FileJob, agg *report.Aggregator) {
	_ = job.Start()

	rep, snrs, err := s.processFile(ctx, job.InputPath)
	if err != nil {
		s.logger.Error("file processing failed",
			slog.String("input", job.InputPath),
			slog.String("error", err.Error()),
		)
		agg.AddError(job.InputPath, err)
		_ = job.Fail(err.Error())
	} else {
		agg.Add(rep, snrs)
		_ = job.Complete(rep.SegmentsAccepted, rep.SegmentsRejected)
	}
	_ = s.repo.Save(ctx, job)
}

// processFile runs the full pipeline for one input file: transcode, denoise,
// voice activity detection, diarization, segmentation, quality filtering and
// export. It returns the finalized per-file report together with the SNR
// values of its accepted segments.
func (s *Service) processFile(ctx context.Context, input string) (report.FileReport, []float64, error) {
	stem := fileStem(input)
	var temps []string
	defer func() {
		if err := s.store.CleanupTemp(context.WithoutCancel(ctx), temps); err != nil {
			s.logger.Warn("temp cleanup failed", slog.String("error", err.Error()))
		}
	}()

	// Working copy at the configured rate and channel layout, 16-bit.
	workPath := s.store.TempPath(stem + "_work.wav")
	temps = append(temps, workPath)
	if err := s.transcoder.ToWAV(ctx, input, workPath, s.pipeline.Normalization.SampleRate, s.pipeline.Normalization.Mono); err != nil {
		return report.FileReport{}, nil, fmt.Errorf("transcode %s: %w", input, err)
	}

	if s.pipeline.NoiseReduction.Enabled {
		cleanPath := s.store.TempPath(stem + "_denoised.wav")
		temps = append(temps, cleanPath)
		err := s.transcoder.Denoise(ctx, workPath, cleanPath, media.DenoiseOptions{
			Stationary:   s.pipeline.NoiseReduction.Stationary,
			PropDecrease: s.pipeline.NoiseReduction.PropDecrease,
		})
		if err != nil {
			return report.FileReport{}, nil, fmt.Errorf("denoise %s: %w", input, err)
		}
		workPath = cleanPath
	}

	clip, err := audio.ReadWAV(workPath)
	if err != nil {
		return report.FileReport{}, nil, fmt.Errorf("decode %s: %w", input, err)
	}

	frames, err := s.speechFrames(ctx, input, stem, workPath, clip, &temps)
	if err != nil {
		return report.FileReport{}, nil, err
	}

	if s.pipeline.Diarization.Enabled && s.diarizer != nil {
		turns, err := s.diarizer.Diarize(ctx, workPath, diarize.Options{
			MinSpeakers: s.pipeline.Diarization.MinSpeakers,
			MaxSpeakers: s.pipeline.Diarization.MaxSpeakers,
		})
		if err != nil {
			return report.FileReport{}, nil, fmt.Errorf("diarize %s: %w", input, err)
		}
		turns = diarize.DropShortTurns(turns, s.pipeline.Diarization.MinSegmentDuration)
		frames = diarize.Annotate(frames, turns)
	}

	seg, err := segmenter.New(segmenter.Options{
		MinDuration:        s.pipeline.Segmentation.MinDuration,
		MaxDuration:        s.pipeline.Segmentation.MaxDuration,
		TargetDuration:     s.pipeline.Segmentation.TargetDuration,
		PauseThreshold:     s.pipeline.Segmentation.PauseThreshold,
		MergeShortSegments: s.pipeline.Segmentation.MergeShortSegments,
	})
	if err != nil {
		return report.FileReport{}, nil, fmt.Errorf("segmenter: %w", err)
	}
	result := seg.Segment(frames, clip)

	filter := quality.NewFilter(quality.Thresholds{
		MinDuration:       s.pipeline.Segmentation.MinDuration,
		MaxDuration:       s.pipeline.Segmentation.MaxDuration,
		MaxClippingRatio:  s.pipeline.QualityFilter.MaxClippingRatio,
		MinSNR:            s.pipeline.QualityFilter.MinSNR,
		MinFrequency:      s.pipeline.QualityFilter.MinFrequency,
		MaxFrequency:      s.pipeline.QualityFilter.MaxFrequency,
		MinEnergyVariance: s.pipeline.QualityFilter.MinEnergyVariance,
	})

	// Report the source file's true duration; the decoded working copy only
	// approximates it when the transcode resamples.
	totalDur, err := s.transcoder.Duration(ctx, input)
	if err != nil || totalDur <= 0 {
		totalDur = clip.Duration()
	}
	collector := report.NewCollector(input, totalDur)
	for i, c := range result.Candidates {
		v := filter.Evaluate(c)
		collector.AddVerdict(c.Speaker, v)

		if v.Accepted {
			rel := storage.SegmentPath(c.Speaker, stem, i+1, ".wav")
			if err := s.exportSegment(ctx, rel, c.Samples, c.SampleRate); err != nil {
				return report.FileReport{}, nil, fmt.Errorf("export segment %s: %w", rel, err)
			}
			continue
		}

		s.logger.Debug("segment rejected",
			slog.String("input", input),
			slog.Int("segment", i+1),
			slog.String("reason", string(v.Reason)),
		)
		if s.pipeline.Output.ExportRejected {
			rel := storage.RejectedPath(string(v.Reason), stem, i+1, ".wav")
			if err := s.exportSegment(ctx, rel, c.Samples, c.SampleRate); err != nil {
				return report.FileReport{}, nil, fmt.Errorf("export rejected segment %s: %w", rel, err)
			}
		}
	}
	for range result.DroppedShort {
		collector.AddDropped(quality.ReasonTooShort)
	}

	rep := collector.Report()
	s.logger.Info("file processed",
		slog.String("input", input),
		slog.Int("segments_generated", rep.SegmentsGenerated),
		slog.Int("segments_accepted", rep.SegmentsAccepted),
		slog.Int("segments_rejected", rep.SegmentsRejected),
		slog.Int("speakers", rep.SpeakersDetected),
	)
	return rep, collector.SNRs(), nil
}

// speechFrames returns the speech/silence timeline for the clip. With VAD
// disabled the whole clip counts as speech. The detector runs on a 16 kHz
// analysis copy when the working rate differs.
func (s *Service) speechFrames(ctx context.Context, input, stem, workPath string, clip *audio.Clip, temps *[]string) ([]timeline.SpeechFrame, error) {
	if !s.pipeline.VAD.Enabled || s.detector == nil {
		return vad.WholeFile(clip), nil
	}

	analysisClip := clip
	if clip.SampleRate != vadSampleRate {
		analysisPath := s.store.TempPath(stem + "_vad.wav")
		*temps = append(*temps, analysisPath)
		if err := s.transcoder.ToWAV(ctx, workPath, analysisPath, vadSampleRate, true); err != nil {
			return nil, fmt.Errorf("prepare vad copy for %s: %w", input, err)
		}
		var err error
		analysisClip, err = audio.ReadWAV(analysisPath)
		if err != nil {
			return nil, fmt.Errorf("decode vad copy for %s: %w", input, err)
		}
	}

	frames, err := s.detector.Frames(ctx, analysisClip)
	if err != nil {
		return nil, fmt.Errorf("vad %s: %w", input, err)
	}
	return frames, nil
}

// exportSegment normalizes, encodes and moves one segment into the output
// tree.
func (s *Service) exportSegment(ctx context.Context, relPath string, samples []float64, sampleRate int) error {
	if s.pipeline.Normalization.Enabled {
		samples = audio.NormalizeLoudness(samples, s.pipeline.Normalization.TargetLoudness)
	}

	tmp := s.store.TempPath(strings.ReplaceAll(relPath, string(filepath.Separator), "_"))
	if err := audio.WriteWAV(tmp, samples, sampleRate, s.pipeline.Output.BitDepth); err != nil {
		return err
	}
	if _, err := s.store.ExportFile(ctx, relPath, tmp); err != nil {
		return err
	}
	return nil
}

// writeReport exports the batch report into the output tree and, when S3 is
// configured, mirrors it there.
func (s *Service) writeReport(ctx context.Context, runID string, agg *report.Aggregator) error {
	var buf bytes.Buffer
	if err := agg.WriteJSON(&buf); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	path, err := s.store.ExportData(ctx, reportFileName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("batch: write report: %w", err)
	}
	s.logger.Info("report written", slog.String("path", path))

	url, err := s.store.UploadToS3(ctx, runID+"/"+reportFileName, bytes.NewReader(buf.Bytes()))
	switch {
	case errors.Is(err, storage.ErrS3NotConfigured):
		// Local-only run.
	case err != nil:
		s.logger.Warn("report upload failed", slog.String("error", err.Error()))
	default:
		s.logger.Info("report uploaded", slog.String("url", url))
	}
	return nil
}

// fileStem returns the input file name without directory or extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

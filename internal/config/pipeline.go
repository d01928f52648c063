package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPipeline is returned when the pipeline configuration fails
// validation. The caller should treat it as fatal; a bad pipeline would
// silently mis-process every file in the batch.
var ErrInvalidPipeline = errors.New("config: invalid pipeline configuration")

// Pipeline holds the processing parameters, loaded from a YAML file.
// Every section has working defaults; a config file only overrides what it
// names.
type Pipeline struct {
	Diarization    DiarizationConfig    `yaml:"diarization"`
	VAD            VADConfig            `yaml:"vad"`
	NoiseReduction NoiseReductionConfig `yaml:"noise_reduction"`
	QualityFilter  QualityFilterConfig  `yaml:"quality_filter"`
	Segmentation   SegmentationConfig   `yaml:"segmentation"`
	Normalization  NormalizationConfig  `yaml:"normalization"`
	Output         OutputConfig         `yaml:"output"`
}

// DiarizationConfig controls speaker attribution.
type DiarizationConfig struct {
	Enabled     bool `yaml:"enabled"`
	MinSpeakers int  `yaml:"min_speakers" validate:"min=0"`
	MaxSpeakers int  `yaml:"max_speakers" validate:"min=0,gtefield=MinSpeakers"`
	// MinSegmentDuration drops speaker turns shorter than this many seconds
	// before they influence frame attribution.
	MinSegmentDuration float64 `yaml:"min_segment_duration" validate:"min=0"`
}

// VADConfig controls voice activity detection.
type VADConfig struct {
	Enabled            bool    `yaml:"enabled"`
	Threshold          float64 `yaml:"threshold" validate:"min=0,max=1"`
	MinSpeechDuration  float64 `yaml:"min_speech_duration" validate:"min=0"`
	MinSilenceDuration float64 `yaml:"min_silence_duration" validate:"min=0"`
}

// NoiseReductionConfig controls the spectral denoising pass.
type NoiseReductionConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Stationary   bool    `yaml:"stationary"`
	PropDecrease float64 `yaml:"prop_decrease" validate:"min=0,max=1"`
}

// QualityFilterConfig holds the acceptance thresholds for segments. The
// duration bounds live under segmentation; the filter shares them.
type QualityFilterConfig struct {
	MaxClippingRatio  float64 `yaml:"max_clipping_ratio" validate:"min=0,max=1"`
	MinSNR            float64 `yaml:"min_snr"`
	MinFrequency      float64 `yaml:"min_frequency" validate:"min=0"`
	MaxFrequency      float64 `yaml:"max_frequency" validate:"gt=0,gtfield=MinFrequency"`
	MinEnergyVariance float64 `yaml:"min_energy_variance" validate:"min=0"`
}

// SegmentationConfig controls how speech is cut into segments.
type SegmentationConfig struct {
	MinDuration        float64 `yaml:"min_duration" validate:"gt=0"`
	MaxDuration        float64 `yaml:"max_duration" validate:"gt=0,gtfield=MinDuration"`
	PauseThreshold     float64 `yaml:"pause_threshold" validate:"gt=0"`
	TargetDuration     float64 `yaml:"target_duration" validate:"gt=0"`
	MergeShortSegments bool    `yaml:"merge_short_segments"`
}

// NormalizationConfig controls loudness normalization and the working
// sample rate and channel layout.
type NormalizationConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TargetLoudness float64 `yaml:"target_loudness" validate:"max=0"`
	SampleRate     int     `yaml:"sample_rate" validate:"gt=0"`
	Mono           bool    `yaml:"mono"`
}

// OutputConfig controls the output tree.
type OutputConfig struct {
	Format         string `yaml:"format" validate:"oneof=wav"`
	BitDepth       int    `yaml:"bit_depth" validate:"oneof=16 24"`
	GenerateReport bool   `yaml:"generate_report"`
	ExportRejected bool   `yaml:"export_rejected"`
}

// DefaultPipeline returns the pipeline configuration used when no file is
// provided.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Diarization: DiarizationConfig{
			Enabled:            false,
			MinSpeakers:        1,
			MaxSpeakers:        10,
			MinSegmentDuration: 0.5,
		},
		VAD: VADConfig{
			Enabled:            false,
			Threshold:          0.5,
			MinSpeechDuration:  0.25,
			MinSilenceDuration: 0.1,
		},
		NoiseReduction: NoiseReductionConfig{
			Enabled:      false,
			Stationary:   false,
			PropDecrease: 1.0,
		},
		QualityFilter: QualityFilterConfig{
			MaxClippingRatio:  0.01,
			MinSNR:            15.0,
			MinFrequency:      80.0,
			MaxFrequency:      8000.0,
			MinEnergyVariance: 1e-6,
		},
		Segmentation: SegmentationConfig{
			MinDuration:        1.0,
			MaxDuration:        10.0,
			PauseThreshold:     0.3,
			TargetDuration:     7.0,
			MergeShortSegments: true,
		},
		Normalization: NormalizationConfig{
			Enabled:        true,
			TargetLoudness: -23.0,
			SampleRate:     16000,
			Mono:           true,
		},
		Output: OutputConfig{
			Format:         "wav",
			BitDepth:       16,
			GenerateReport: true,
			ExportRejected: false,
		},
	}
}

// LoadPipeline reads a pipeline configuration file and overlays it on the
// defaults. An empty path returns the defaults. Validation failures are
// wrapped in ErrInvalidPipeline.
func LoadPipeline(path string) (Pipeline, error) {
	p := DefaultPipeline()
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 - path comes from the CLI flag
		if err != nil {
			return Pipeline{}, fmt.Errorf("config: read pipeline file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Pipeline{}, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
		}
	}

	if err := validator.New().Struct(p); err != nil {
		return Pipeline{}, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}
	return p, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipeline(t *testing.T) {
	p := DefaultPipeline()

	assert.InDelta(t, 0.01, p.QualityFilter.MaxClippingRatio, 1e-9)
	assert.InDelta(t, 15.0, p.QualityFilter.MinSNR, 1e-9)
	assert.InDelta(t, 80.0, p.QualityFilter.MinFrequency, 1e-9)
	assert.InDelta(t, 8000.0, p.QualityFilter.MaxFrequency, 1e-9)
	assert.InDelta(t, 1.0, p.Segmentation.MinDuration, 1e-9)
	assert.InDelta(t, 10.0, p.Segmentation.MaxDuration, 1e-9)
	assert.InDelta(t, 0.3, p.Segmentation.PauseThreshold, 1e-9)
	assert.True(t, p.Segmentation.MergeShortSegments)
	assert.InDelta(t, -23.0, p.Normalization.TargetLoudness, 1e-9)
	assert.Equal(t, 16000, p.Normalization.SampleRate)
	assert.True(t, p.Normalization.Mono)
	assert.Equal(t, "wav", p.Output.Format)
	assert.Equal(t, 16, p.Output.BitDepth)
	assert.True(t, p.Output.GenerateReport)
}

func TestLoadPipeline(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		p, err := LoadPipeline("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPipeline(), p)
	})

	t.Run("file overrides only named fields", func(t *testing.T) {
		path := writePipelineFile(t, `
quality_filter:
  min_snr: 20.0
segmentation:
  pause_threshold: 0.5
vad:
  enabled: true
`)

		p, err := LoadPipeline(path)
		require.NoError(t, err)

		assert.InDelta(t, 20.0, p.QualityFilter.MinSNR, 1e-9)
		assert.InDelta(t, 0.5, p.Segmentation.PauseThreshold, 1e-9)
		assert.True(t, p.VAD.Enabled)

		// Untouched sections keep their defaults.
		assert.InDelta(t, 1.0, p.Segmentation.MinDuration, 1e-9)
		assert.Equal(t, 16000, p.Normalization.SampleRate)
	})

	t.Run("every documented option is recognized", func(t *testing.T) {
		path := writePipelineFile(t, `
diarization:
  enabled: true
  min_speakers: 2
  max_speakers: 4
  min_segment_duration: 0.75
vad:
  enabled: true
  threshold: 0.6
  min_speech_duration: 0.3
  min_silence_duration: 0.2
noise_reduction:
  enabled: true
  stationary: true
  prop_decrease: 0.8
quality_filter:
  min_snr: 18.0
  max_clipping_ratio: 0.02
  min_frequency: 100.0
  max_frequency: 7000.0
  min_energy_variance: 1.0e-5
segmentation:
  min_duration: 2.0
  max_duration: 8.0
  target_duration: 5.0
  pause_threshold: 0.4
  merge_short_segments: false
normalization:
  target_loudness: -20.0
  sample_rate: 22050
  mono: false
output:
  format: wav
  bit_depth: 24
  export_rejected: true
  generate_report: false
`)

		p, err := LoadPipeline(path)
		require.NoError(t, err)

		assert.InDelta(t, 0.75, p.Diarization.MinSegmentDuration, 1e-9)
		assert.Equal(t, 2, p.Diarization.MinSpeakers)
		assert.Equal(t, 4, p.Diarization.MaxSpeakers)
		assert.InDelta(t, 0.6, p.VAD.Threshold, 1e-9)
		assert.InDelta(t, 0.3, p.VAD.MinSpeechDuration, 1e-9)
		assert.True(t, p.NoiseReduction.Stationary)
		assert.InDelta(t, 0.8, p.NoiseReduction.PropDecrease, 1e-9)
		assert.InDelta(t, 18.0, p.QualityFilter.MinSNR, 1e-9)
		assert.InDelta(t, 1e-5, p.QualityFilter.MinEnergyVariance, 1e-12)
		assert.InDelta(t, 2.0, p.Segmentation.MinDuration, 1e-9)
		assert.InDelta(t, 8.0, p.Segmentation.MaxDuration, 1e-9)
		assert.InDelta(t, 5.0, p.Segmentation.TargetDuration, 1e-9)
		assert.False(t, p.Segmentation.MergeShortSegments)
		assert.InDelta(t, -20.0, p.Normalization.TargetLoudness, 1e-9)
		assert.Equal(t, 22050, p.Normalization.SampleRate)
		assert.False(t, p.Normalization.Mono)
		assert.Equal(t, 24, p.Output.BitDepth)
		assert.True(t, p.Output.ExportRejected)
		assert.False(t, p.Output.GenerateReport)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadPipeline("/non/existent/pipeline.yaml")
		require.Error(t, err)
	})

	t.Run("malformed yaml is invalid", func(t *testing.T) {
		path := writePipelineFile(t, "quality_filter: [not a mapping")

		_, err := LoadPipeline(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPipeline)
	})

	t.Run("out of range values are invalid", func(t *testing.T) {
		tests := []struct {
			name string
			yaml string
		}{
			{"negative pause threshold", "segmentation:\n  pause_threshold: -0.1\n"},
			{"max duration below min", "segmentation:\n  min_duration: 5.0\n  max_duration: 2.0\n"},
			{"negative min segment duration", "diarization:\n  min_segment_duration: -0.5\n"},
			{"clipping ratio above one", "quality_filter:\n  max_clipping_ratio: 1.5\n"},
			{"unsupported bit depth", "output:\n  bit_depth: 8\n"},
			{"unsupported format", "output:\n  format: mp3\n"},
			{"zero sample rate", "normalization:\n  sample_rate: 0\n"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := writePipelineFile(t, tt.yaml)

				_, err := LoadPipeline(path)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPipeline)
			})
		}
	})
}

func writePipelineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

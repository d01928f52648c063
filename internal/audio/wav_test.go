package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadWAV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	in := make([]float64, 16000)
	for i := range in {
		in[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}

	require.NoError(t, WriteWAV(path, in, 16000, 16))

	clip, err := ReadWAV(path)
	require.NoError(t, err)

	assert.Equal(t, 16000, clip.SampleRate)
	require.Len(t, clip.Samples, len(in))
	assert.InDelta(t, 1.0, clip.Duration(), 1e-6)

	// 16-bit quantization bounds the per-sample error.
	for i := range in {
		assert.InDelta(t, in[i], clip.Samples[i], 1.0/32768*2)
	}
}

func TestWriteWAV_24Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone24.wav")

	in := make([]float64, 8000)
	for i := range in {
		in[i] = 0.25 * math.Sin(2*math.Pi*220*float64(i)/8000)
	}

	require.NoError(t, WriteWAV(path, in, 8000, 24))

	clip, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	for i := range in {
		assert.InDelta(t, in[i], clip.Samples[i], 1.0/(1<<23)*4)
	}
}

func TestWriteWAV_ClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hot.wav")

	require.NoError(t, WriteWAV(path, []float64{2.0, -2.0, 0.0}, 16000, 16))

	clip, err := ReadWAV(path)
	require.NoError(t, err)
	require.Len(t, clip.Samples, 3)
	assert.LessOrEqual(t, math.Abs(clip.Samples[0]), 1.0)
	assert.LessOrEqual(t, math.Abs(clip.Samples[1]), 1.0)
}

func TestWriteWAV_InvalidArgs(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad sample rate", func(t *testing.T) {
		err := WriteWAV(filepath.Join(dir, "a.wav"), []float64{0}, 0, 16)
		assert.ErrorIs(t, err, ErrInvalidSampleRate)
	})

	t.Run("bad bit depth", func(t *testing.T) {
		err := WriteWAV(filepath.Join(dir, "b.wav"), []float64{0}, 16000, 8)
		assert.ErrorIs(t, err, ErrUnsupportedBitDepth)
	})
}

func TestReadWAV_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ReadWAV("/non/existent/file.wav")
		require.Error(t, err)
	})

	t.Run("not a wav file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "not_audio.wav")
		require.NoError(t, os.WriteFile(path, []byte("plain text, not RIFF"), 0o600))

		_, err := ReadWAV(path)
		assert.ErrorIs(t, err, ErrNotWAV)
	})
}

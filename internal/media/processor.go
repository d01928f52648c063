// Package media shells out to ffmpeg for format conversion, resampling and
// noise reduction. Decoding and sample-level analysis live in the audio
// package; this one only prepares WAV working copies for it.
package media

import "context"

// DenoiseOptions tunes the spectral noise reduction pass.
type DenoiseOptions struct {
	// Stationary selects a fixed noise-floor estimate instead of the
	// default frame-tracking one.
	Stationary bool
	// PropDecrease in [0, 1] scales how much of the estimated noise is
	// subtracted. 1 removes the full estimate.
	PropDecrease float64
}

// Transcoder converts input media into analysis-ready WAV files.
type Transcoder interface {
	// ToWAV decodes src into a 16-bit PCM WAV at the given rate, optionally
	// downmixed to mono.
	ToWAV(ctx context.Context, src, dst string, sampleRate int, mono bool) error
	// Denoise applies spectral noise reduction to a WAV file.
	Denoise(ctx context.Context, src, dst string, opts DenoiseOptions) error
	// Duration returns the duration of a media file in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}

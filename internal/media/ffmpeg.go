package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidSampleRate is returned when the target rate is not positive.
	ErrInvalidSampleRate = errors.New("invalid sample rate: must be positive")
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// FFmpegTranscoder implements Transcoder using the ffmpeg CLI.
type FFmpegTranscoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath}
}

// ToWAV decodes any input ffmpeg understands into a 16-bit PCM WAV at the
// given sample rate. With mono set, multi-channel input is downmixed;
// otherwise the source channel layout is kept.
func (t *FFmpegTranscoder) ToWAV(ctx context.Context, src, dst string, sampleRate int, mono bool) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}

	args := []string{
		"-y",      // Overwrite output file without asking
		"-i", src, // Input file
	}
	if mono {
		args = append(args, "-ac", "1") // Downmix to mono
	}
	args = append(args,
		"-ar", strconv.Itoa(sampleRate), // Target sample rate
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-vn", // Drop any video stream
		dst,
	)
	return t.runFFmpeg(ctx, args)
}

// Denoise applies ffmpeg's afftdn spectral denoiser to a WAV file.
func (t *FFmpegTranscoder) Denoise(ctx context.Context, src, dst string, opts DenoiseOptions) error {
	// afftdn's noise reduction is expressed in dB; map the [0,1] strength
	// onto its 0.01..97 range.
	strength := opts.PropDecrease
	if strength <= 0 || strength > 1 {
		strength = 1
	}
	nr := strength * 12

	filter := fmt.Sprintf("afftdn=nr=%.2f", nr)
	if opts.Stationary {
		// Sample the noise profile once at the start instead of tracking it.
		filter += ":tn=0:nt=w"
	} else {
		filter += ":tn=1"
	}

	args := []string{
		"-y",
		"-i", src,
		"-af", filter,
		"-c:a", "pcm_s16le",
		dst,
	}
	return t.runFFmpeg(ctx, args)
}

// Duration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (t *FFmpegTranscoder) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - path is provided by trusted internal code
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (t *FFmpegTranscoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

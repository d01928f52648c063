// Package diarize provides a client for a remote speaker-diarization service
// (a pyannote model served over HTTP) and helpers to annotate a VAD timeline
// with the returned speaker turns. The model itself stays external; this
// package only carries audio across the boundary and maps the response.
package diarize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/maauso/speechprep/internal/timeline"
)

// Static errors for diarization client operations.
var (
	// ErrBaseURLRequired is returned when the service URL is not provided.
	ErrBaseURLRequired = errors.New("diarize: service URL is required")
	// ErrAudioPathRequired is returned when no audio file is provided.
	ErrAudioPathRequired = errors.New("diarize: audio path is required")
	// ErrServerError is returned when the service returns a 5xx status code.
	ErrServerError = errors.New("diarize: server error")
	// ErrRateLimited is returned when the service returns a 429 status code.
	ErrRateLimited = errors.New("diarize: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status.
	ErrRequestFailed = errors.New("diarize: request failed")
)

// Turn is one speaker turn on the timeline.
type Turn struct {
	Span    timeline.TimeSpan
	Speaker string
}

// Options contains parameters for a diarization request.
type Options struct {
	// MinSpeakers and MaxSpeakers bound the speaker count the model may
	// assume. Zero leaves the bound to the model.
	MinSpeakers int
	MaxSpeakers int
}

// Client defines the interface for a diarization service.
type Client interface {
	// Diarize submits the audio file and returns the speaker turns.
	Diarize(ctx context.Context, audioPath string, opts Options) ([]Turn, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL     string
	authToken   string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAuthToken sets the bearer token for authentication.
func WithAuthToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.authToken = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new diarization HTTP client for the given service URL.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// diarizeRequest is the wire format of a diarization submission.
type diarizeRequest struct {
	AudioBase64 string `json:"audio_base64"`
	MinSpeakers int    `json:"min_speakers,omitempty"`
	MaxSpeakers int    `json:"max_speakers,omitempty"`
}

// diarizeResponse is the wire format of a diarization result.
type diarizeResponse struct {
	Turns []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"turns"`
	Error string `json:"error,omitempty"`
}

// Diarize submits the audio file and returns the speaker turns in timeline
// order as delivered by the service.
func (c *HTTPClient) Diarize(ctx context.Context, audioPath string, opts Options) ([]Turn, error) {
	if audioPath == "" {
		return nil, ErrAudioPathRequired
	}

	raw, err := os.ReadFile(audioPath) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("diarize: read audio: %w", err)
	}

	reqBody := diarizeRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(raw),
		MinSpeakers: opts.MinSpeakers,
		MaxSpeakers: opts.MaxSpeakers,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("diarize: marshal request: %w", err)
	}

	var resp diarizeResponse
	if err := c.doRequestWithRetry(ctx, c.baseURL+"/diarize", bodyBytes, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}

	turns := make([]Turn, 0, len(resp.Turns))
	for _, t := range resp.Turns {
		if t.End <= t.Start {
			continue
		}
		turns = append(turns, Turn{
			Span:    timeline.TimeSpan{Start: t.Start, End: t.End},
			Speaker: t.Speaker,
		})
	}
	return turns, nil
}

// doRequestWithRetry performs a POST with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("diarize: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.doRequest(ctx, url, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("diarize: max retries exceeded: %w", lastErr)
}

// doRequest performs a single POST request.
func (c *HTTPClient) doRequest(ctx context.Context, url string, body []byte, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("diarize: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("diarize: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("diarize: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("diarize: decode response: %w", err)
	}
	return nil
}

// isRetryable reports whether the request should be retried.
func isRetryable(err error) bool {
	return errors.Is(err, ErrServerError) || errors.Is(err, ErrRateLimited)
}

// DropShortTurns removes turns shorter than minDur seconds. Very short turns
// are usually diarization jitter and would flip frame attribution on
// boundaries.
func DropShortTurns(turns []Turn, minDur float64) []Turn {
	if minDur <= 0 {
		return turns
	}
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Span.Duration() >= minDur {
			out = append(out, t)
		}
	}
	return out
}

// Annotate assigns each speech frame the speaker of the turn it overlaps
// most. Frames with no overlapping turn keep an empty speaker. The input
// frames are not mutated; an annotated copy is returned.
func Annotate(frames []timeline.SpeechFrame, turns []Turn) []timeline.SpeechFrame {
	out := make([]timeline.SpeechFrame, len(frames))
	copy(out, frames)

	for i, f := range out {
		if !f.IsSpeech {
			continue
		}
		var best string
		var bestOverlap float64
		for _, t := range turns {
			if overlap := f.Span.Overlap(t.Span); overlap > bestOverlap {
				bestOverlap = overlap
				best = t.Speaker
			}
		}
		out[i].Speaker = best
	}
	return out
}

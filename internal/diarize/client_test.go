package diarize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/speechprep/internal/timeline"
)

func writeTestAudio(t *testing.T) (string, []byte) {
	t.Helper()
	content := []byte("RIFF fake wav payload")
	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path, content
}

func turnsResponse(turns ...map[string]interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{"turns": turns})
	return body
}

func TestNewClient(t *testing.T) {
	t.Run("requires base url", func(t *testing.T) {
		_, err := NewClient("")
		assert.ErrorIs(t, err, ErrBaseURLRequired)
	})

	t.Run("applies options", func(t *testing.T) {
		custom := &http.Client{Timeout: time.Second}
		c, err := NewClient("http://localhost:9000",
			WithAuthToken("secret"),
			WithHTTPClient(custom),
			WithMaxRetries(5),
			WithBaseBackoff(10*time.Millisecond),
		)
		require.NoError(t, err)
		assert.Equal(t, "secret", c.authToken)
		assert.Same(t, custom, c.httpClient)
		assert.Equal(t, 5, c.maxRetries)
		assert.Equal(t, 10*time.Millisecond, c.baseBackoff)
	})
}

func TestDiarize_Success(t *testing.T) {
	audioPath, content := writeTestAudio(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/diarize", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req struct {
			AudioBase64 string `json:"audio_base64"`
			MinSpeakers int    `json:"min_speakers"`
			MaxSpeakers int    `json:"max_speakers"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, base64.StdEncoding.EncodeToString(content), req.AudioBase64)
		assert.Equal(t, 1, req.MinSpeakers)
		assert.Equal(t, 3, req.MaxSpeakers)

		w.Write(turnsResponse(
			map[string]interface{}{"start": 0.0, "end": 2.5, "speaker": "SPEAKER_00"},
			map[string]interface{}{"start": 2.5, "end": 4.0, "speaker": "SPEAKER_01"},
		))
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithAuthToken("test-token"))
	require.NoError(t, err)

	turns, err := c.Diarize(context.Background(), audioPath, Options{MinSpeakers: 1, MaxSpeakers: 3})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "SPEAKER_00", turns[0].Speaker)
	assert.InDelta(t, 2.5, turns[0].Span.End, 1e-9)
	assert.Equal(t, "SPEAKER_01", turns[1].Speaker)
}

func TestDiarize_DropsDegenerateTurns(t *testing.T) {
	audioPath, _ := writeTestAudio(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(turnsResponse(
			map[string]interface{}{"start": 1.0, "end": 1.0, "speaker": "SPEAKER_00"},
			map[string]interface{}{"start": 3.0, "end": 2.0, "speaker": "SPEAKER_00"},
			map[string]interface{}{"start": 0.0, "end": 1.5, "speaker": "SPEAKER_01"},
		))
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	require.NoError(t, err)

	turns, err := c.Diarize(context.Background(), audioPath, Options{})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "SPEAKER_01", turns[0].Speaker)
}

func TestDiarize_RetriesServerErrors(t *testing.T) {
	audioPath, _ := writeTestAudio(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(turnsResponse(
			map[string]interface{}{"start": 0.0, "end": 1.0, "speaker": "SPEAKER_00"},
		))
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	turns, err := c.Diarize(context.Background(), audioPath, Options{})
	require.NoError(t, err)
	assert.Len(t, turns, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDiarize_ExhaustsRetries(t *testing.T) {
	audioPath, _ := writeTestAudio(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithMaxRetries(1), WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	_, err = c.Diarize(context.Background(), audioPath, Options{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDiarize_DoesNotRetryClientErrors(t *testing.T) {
	audioPath, _ := writeTestAudio(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	_, err = c.Diarize(context.Background(), audioPath, Options{})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDiarize_ServiceReportedError(t *testing.T) {
	audioPath, _ := writeTestAudio(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = c.Diarize(context.Background(), audioPath, Options{})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestDiarize_InvalidInputs(t *testing.T) {
	c, err := NewClient("http://localhost:9000")
	require.NoError(t, err)

	t.Run("empty audio path", func(t *testing.T) {
		_, err := c.Diarize(context.Background(), "", Options{})
		assert.ErrorIs(t, err, ErrAudioPathRequired)
	})

	t.Run("missing audio file", func(t *testing.T) {
		_, err := c.Diarize(context.Background(), "/non/existent.wav", Options{})
		require.Error(t, err)
	})
}

func TestDropShortTurns(t *testing.T) {
	turns := []Turn{
		{Span: timeline.TimeSpan{Start: 0, End: 2}, Speaker: "SPEAKER_00"},
		{Span: timeline.TimeSpan{Start: 2, End: 2.3}, Speaker: "SPEAKER_01"},
		{Span: timeline.TimeSpan{Start: 2.3, End: 4}, Speaker: "SPEAKER_00"},
	}

	kept := DropShortTurns(turns, 0.5)
	require.Len(t, kept, 2)
	assert.Equal(t, "SPEAKER_00", kept[0].Speaker)
	assert.Equal(t, "SPEAKER_00", kept[1].Speaker)

	// A zero threshold disables the filter.
	assert.Len(t, DropShortTurns(turns, 0), 3)
}

func TestAnnotate(t *testing.T) {
	frames := []timeline.SpeechFrame{
		{Span: timeline.TimeSpan{Start: 0, End: 2}, IsSpeech: true},
		{Span: timeline.TimeSpan{Start: 2, End: 3}},
		{Span: timeline.TimeSpan{Start: 3, End: 5}, IsSpeech: true},
		{Span: timeline.TimeSpan{Start: 5, End: 6}, IsSpeech: true},
	}
	turns := []Turn{
		{Span: timeline.TimeSpan{Start: 0, End: 2.5}, Speaker: "SPEAKER_00"},
		{Span: timeline.TimeSpan{Start: 2.5, End: 5}, Speaker: "SPEAKER_01"},
	}

	out := Annotate(frames, turns)
	require.Len(t, out, 4)

	assert.Equal(t, "SPEAKER_00", out[0].Speaker)
	// Silence frames are never attributed, even when a turn covers them.
	assert.Empty(t, out[1].Speaker)
	assert.Equal(t, "SPEAKER_01", out[2].Speaker)
	// No turn overlaps the last frame.
	assert.Empty(t, out[3].Speaker)

	// The input slice is untouched.
	assert.Empty(t, frames[0].Speaker)
}

func TestAnnotate_PicksLargestOverlap(t *testing.T) {
	frames := []timeline.SpeechFrame{
		{Span: timeline.TimeSpan{Start: 0, End: 4}, IsSpeech: true},
	}
	turns := []Turn{
		{Span: timeline.TimeSpan{Start: 0, End: 1}, Speaker: "SPEAKER_00"},
		{Span: timeline.TimeSpan{Start: 1, End: 4}, Speaker: "SPEAKER_01"},
	}

	out := Annotate(frames, turns)
	assert.Equal(t, "SPEAKER_01", out[0].Speaker)
}

// Package transcribe provides a thin client for an external Whisper-style
// transcription service. The service accepts an audio stream and returns
// the full text plus word-level timestamps.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single transcription call. Audio transcription
// is the longest external operation in the system; a hung service must
// not hang the caller indefinitely.
const DefaultTimeout = 2 * time.Minute

// WordTimestamp is one word with its position in the audio.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start_seconds"`
	End   float64 `json:"end_seconds"`
}

// Result is a completed transcription.
type Result struct {
	Text  string          `json:"text"`
	Words []WordTimestamp `json:"words"`
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the transcription service over HTTP.
type Client struct {
	client  http.Client
	baseURL string
}

// NewClient creates a transcription client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:  http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Transcribe posts the audio bytes and returns text plus word timestamps.
// There is no meaningful partial result, so any failure is a hard error.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing transcription response: %w", err)
	}
	return &result, nil
}

// MarshalWords serializes word timestamps for storage on the event row.
func MarshalWords(words []WordTimestamp) string {
	if len(words) == 0 {
		return ""
	}
	data, err := json.Marshal(words)
	if err != nil {
		return ""
	}
	return string(data)
}

// UnmarshalWords parses stored word timestamps. Malformed or empty input
// yields nil; stored timestamps are display data, not worth failing over.
func UnmarshalWords(s string) []WordTimestamp {
	if s == "" {
		return nil
	}
	var words []WordTimestamp
	if err := json.Unmarshal([]byte(s), &words); err != nil {
		return nil
	}
	return words
}

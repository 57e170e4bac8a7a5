package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTranscription wraps any failure of the speech-to-text call. It fails
// the owning job.
var ErrTranscription = errors.New("transcription failed")

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the Whisper transcription endpoint. One remote call per
// artifact; retries are the caller's concern.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host. Tests use this.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds a single transcription call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a transcription client for the given model
// (e.g. whisper-1).
func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe sends the audio file at path and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key not configured", ErrTranscription)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open artifact: %v", ErrTranscription, err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("%w: read artifact: %v", ErrTranscription, err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: %s", ErrTranscription, apiError(resp))
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTranscription, err)
	}
	return strings.TrimSpace(payload.Text), nil
}

// apiError extracts the API error message from an error response.
func apiError(resp *http.Response) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, payload.Error.Message)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrSynthesisUnavailable indicates the text-to-speech backend could not
// render the reply audio.
var ErrSynthesisUnavailable = errors.New("synthesis unavailable")

// Client provides HTTP client functionality for the synthesis backend
type Client struct {
	config     Config
	httpClient *http.Client
}

// Config contains synthesis client configuration
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	Voice      string
	SampleRate int
}

type synthesisRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

// NewClient creates a new synthesis HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// SampleRate returns the PCM sample rate the backend renders at.
func (c *Client) SampleRate() int {
	return c.config.SampleRate
}

// Synthesize renders the text as raw PCM16 mono audio.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesisUnavailable)
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:       text,
		Voice:      c.config.Voice,
		SampleRate: c.config.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSynthesisUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %s", ErrSynthesisUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP error %d: %s", ErrSynthesisUnavailable, resp.StatusCode, string(body))
	}

	if len(body) == 0 || len(body)%2 != 0 {
		return nil, fmt.Errorf("%w: backend returned %d bytes, expected non-empty PCM16", ErrSynthesisUnavailable, len(body))
	}

	return body, nil
}

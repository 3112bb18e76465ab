package reasoning

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

// ErrReasoningUnavailable indicates the language-model backend could not
// produce a reply for the transcript.
var ErrReasoningUnavailable = errors.New("reasoning unavailable")

// Client provides HTTP client functionality for the reasoning backend
type Client struct {
	config     Config
	httpClient *http.Client
}

// Config contains reasoning client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Model    string
}

// Request carries one transcript to the reasoning backend.
type Request struct {
	Transcript string `json:"transcript"`
	RoomID     string `json:"room_id"`
	RoomLabel  string `json:"room_label,omitempty"`
	SessionID  string `json:"session_id"`
	Model      string `json:"model,omitempty"`
}

// Action is a structured command the assistant wants executed alongside
// its spoken reply, such as "home.light_on" or "music.play".
type Action struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Response represents the reasoning backend's answer: the text to speak
// and any actions to execute.
type Response struct {
	Reply   string   `json:"reply"`
	Actions []Action `json:"actions,omitempty"`
}

// NewClient creates a new reasoning HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Reason sends the transcript and returns the assistant's reply. The reply
// text may be empty when the backend decides only actions are needed.
func (c *Client) Reason(ctx context.Context, request *Request) (*Response, error) {
	if request.Model == "" {
		request.Model = c.config.Model
	}

	payload, err := json.Marshal(request)
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
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReasoningUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %s", ErrReasoningUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP error %d: %s", ErrReasoningUnavailable, resp.StatusCode, string(respBody))
	}

	var reasoningResp Response
	if err := json.Unmarshal(respBody, &reasoningResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response JSON: %s", ErrReasoningUnavailable, err)
	}

	return &reasoningResp, nil
}

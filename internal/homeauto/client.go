package homeauto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ParcMagScene/Exo/internal/reasoning"
)

// ErrUnknownAction indicates an action name with no recognized prefix.
var ErrUnknownAction = errors.New("unknown action")

// Client executes structured assistant actions against the home automation
// bridge over its REST API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Config contains home automation client configuration
type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	Enabled  bool
}

// NewClient creates a new home automation client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Enabled && config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// Execute runs each action in order. Failures are logged and do not stop
// the remaining actions or the spoken reply; a voice assistant should still
// answer even when a light switch is unreachable.
func (c *Client) Execute(ctx context.Context, roomID string, actions []reasoning.Action) {
	if !c.config.Enabled || len(actions) == 0 {
		return
	}

	for _, action := range actions {
		if err := c.executeOne(ctx, roomID, action); err != nil {
			c.logger.Warn("Action execution failed",
				slog.String("action", action.Name),
				slog.String("room_id", roomID),
				slog.String("error", err.Error()),
			)
			continue
		}

		c.logger.Info("Action executed",
			slog.String("action", action.Name),
			slog.String("room_id", roomID),
		)
	}
}

// executeOne routes a single action by its name prefix. Room-scoped actions
// get the originating room injected so "room.light_on" acts where the voice
// came from.
func (c *Client) executeOne(ctx context.Context, roomID string, action reasoning.Action) error {
	var path string
	switch {
	case strings.HasPrefix(action.Name, "home."):
		path = "/services/home/" + strings.TrimPrefix(action.Name, "home.")
	case strings.HasPrefix(action.Name, "music."):
		path = "/services/music/" + strings.TrimPrefix(action.Name, "music.")
	case strings.HasPrefix(action.Name, "room."):
		path = "/services/room/" + strings.TrimPrefix(action.Name, "room.")
		if action.Args == nil {
			action.Args = map[string]string{}
		}
		if _, ok := action.Args["room"]; !ok {
			action.Args["room"] = roomID
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action.Name)
	}

	payload, err := json.Marshal(action.Args)
	if err != nil {
		return fmt.Errorf("failed to encode action args: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

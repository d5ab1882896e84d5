package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// ServerEvent is the wire shape of a single event in the upstream
// conversion API's batch payload.
type ServerEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	EventID        string         `json:"event_id"`
	UserData       map[string]any `json:"user_data,omitempty"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

type batchRequest struct {
	Data        []ServerEvent `json:"data"`
	AccessToken string        `json:"access_token"`
}

// Client posts conversion events to the third-party API. It is the only
// holder of the long-lived access token; nothing client-side ever sees it.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewClient(endpoint, accessToken string, logger *zap.Logger) *Client {
	return &Client{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: requestTimeout},
		logger:      logger,
	}
}

// Configured reports whether the outbound credential is present.
func (c *Client) Configured() bool {
	return c.accessToken != ""
}

// Send forwards a single event and returns the decoded upstream response
// body. Any non-2xx status, timeout, or decode failure is an error.
func (c *Client) Send(ctx context.Context, ev ServerEvent) (map[string]any, error) {
	body, err := json.Marshal(batchRequest{
		Data:        []ServerEvent{ev},
		AccessToken: c.accessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			c.logger.Warn("Upstream response is not JSON",
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", raw))
			decoded = map[string]any{"raw": string(raw)}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decoded, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	return decoded, nil
}

package pixel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Beacon fires pixel-style GET hits at the tracking endpoint. It is the
// immediate, lossy channel that runs alongside the relay dispatch: the
// two are not transactionally linked, and a beacon failure never affects
// the relay outcome. Failures are logged and swallowed.
type Beacon struct {
	endpoint   string
	pixelID    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewBeacon(endpoint, pixelID string, logger *zap.Logger) *Beacon {
	return &Beacon{
		endpoint:   endpoint,
		pixelID:    pixelID,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Fire sends one pixel hit. Safe to call on a nil or unconfigured
// beacon; both are no-ops.
func (b *Beacon) Fire(ctx context.Context, eventName, eventID string, custom map[string]any) {
	if b == nil || b.endpoint == "" {
		return
	}

	params := url.Values{}
	params.Set("id", b.pixelID)
	params.Set("ev", eventName)
	params.Set("eid", eventID)
	for key, value := range custom {
		params.Set("cd["+key+"]", fmt.Sprint(value))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		b.logger.Warn("Failed to build pixel request", zap.Error(err))
		return
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Warn("Pixel hit failed",
			zap.Error(err),
			zap.String("event_name", eventName))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		b.logger.Warn("Pixel hit rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("event_name", eventName))
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"conversion-relay/internal/event"
	"conversion-relay/internal/hashing"
	"conversion-relay/internal/upstream"
	"conversion-relay/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Forwarder is the outbound side of the relay, implemented by
// upstream.Client and mocked in tests.
type Forwarder interface {
	Configured() bool
	Send(ctx context.Context, ev upstream.ServerEvent) (map[string]any, error)
}

// Envelope is the uniform relay response. The relay always answers
// HTTP 200 so that emitters branch on the success flag alone instead of
// spreading transport-status handling through their retry logic.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

type trackRequest struct {
	EventName      string         `json:"eventName"`
	EventID        string         `json:"eventId"`
	UserData       map[string]any `json:"userData"`
	CustomData     map[string]any `json:"customData"`
	EventSourceURL string         `json:"eventSourceUrl"`
}

type TrackHandler struct {
	logger      *zap.Logger
	forwarder   Forwarder
	rateLimiter *RateLimiter
	catalog     map[string]any
}

// NewTrackHandler builds the relay handler. catalog holds fixed metadata
// merged into every event's custom data before forwarding (content_type,
// catalog id and the like); nil disables the merge.
func NewTrackHandler(logger *zap.Logger, forwarder Forwarder, catalog map[string]any) *TrackHandler {
	return &TrackHandler{
		logger:      logger,
		forwarder:   forwarder,
		rateLimiter: NewRateLimiter(),
		catalog:     catalog,
	}
}

func (h *TrackHandler) HandleTrack(c *gin.Context) {
	start := time.Now()

	// Nothing may escape as a 500: the browser-side emitter only ever
	// sees the envelope.
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic while relaying event", zap.Any("panic", r))
			c.JSON(http.StatusOK, Envelope{Success: false, Error: "internal relay error", Details: r})
		}
	}()

	if !h.rateLimiter.AllowRequest(c.ClientIP()) {
		metrics.RateLimitExceeded.Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to parse track payload", zap.Error(err))
		c.JSON(http.StatusOK, Envelope{Success: false, Error: "invalid JSON payload", Details: err.Error()})
		return
	}

	if req.EventName == "" {
		c.JSON(http.StatusOK, Envelope{Success: false, Error: "eventName é obrigatório"})
		return
	}

	metrics.EventsReceived.WithLabelValues(req.EventName).Inc()

	if !h.forwarder.Configured() {
		h.logger.Error("Conversion API access token not configured")
		c.JSON(http.StatusOK, Envelope{Success: false, Error: "Conversion API access token not configured"})
		return
	}

	name := event.Name(req.EventName)
	if err := event.ValidateCustomData(name, req.CustomData); err != nil {
		metrics.EventsRejected.WithLabelValues(req.EventName, "validation").Inc()
		h.logger.Warn("Rejected event",
			zap.String("event_name", req.EventName),
			zap.String("reason", err.Error()))
		c.JSON(http.StatusOK, Envelope{Success: false, Error: err.Error()})
		return
	}

	// The upstream API rejects an empty client_ip_address but accepts
	// its absence entirely.
	if ip, ok := req.UserData["client_ip_address"].(string); ok && ip == "" {
		delete(req.UserData, "client_ip_address")
	}

	sourceURL := req.EventSourceURL
	if sourceURL == "" {
		sourceURL = c.Request.Referer()
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = event.NewID()
	}

	serverEvent := upstream.ServerEvent{
		EventName:      req.EventName,
		EventTime:      time.Now().Unix(),
		ActionSource:   "website",
		EventSourceURL: sourceURL,
		EventID:        eventID,
		UserData:       hashing.AnonymizeUserData(req.UserData),
		CustomData:     h.mergeCatalog(req.CustomData),
	}

	data, err := h.forwarder.Send(c.Request.Context(), serverEvent)
	duration := time.Since(start).Seconds()
	metrics.RelayLatency.WithLabelValues(req.EventName).Observe(duration)

	if err != nil {
		metrics.EventsRelayed.WithLabelValues(req.EventName, "failed").Inc()
		h.logger.Error("Failed to forward event",
			zap.Error(err),
			zap.String("event_name", req.EventName),
			zap.String("event_id", eventID))
		c.JSON(http.StatusOK, Envelope{Success: false, Error: "upstream request failed", Details: data})
		return
	}

	metrics.EventsRelayed.WithLabelValues(req.EventName, "success").Inc()
	h.logger.Info("Relayed event",
		zap.String("event_name", req.EventName),
		zap.String("event_id", eventID),
		zap.Float64("duration_seconds", duration))

	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func (h *TrackHandler) mergeCatalog(custom map[string]any) map[string]any {
	if len(h.catalog) == 0 {
		return custom
	}
	merged := make(map[string]any, len(custom)+len(h.catalog))
	for k, v := range h.catalog {
		merged[k] = v
	}
	for k, v := range custom {
		merged[k] = v
	}
	return merged
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"conversion-relay/internal/upstream"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockForwarder) Send(ctx context.Context, ev upstream.ServerEvent) (map[string]any, error) {
	args := m.Called(ctx, ev)
	var data map[string]any
	if args.Get(0) != nil {
		data = args.Get(0).(map[string]any)
	}
	return data, args.Error(1)
}

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHandleTrack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	tests := []struct {
		name        string
		payload     any
		setupMock   func(*MockForwarder)
		wantSuccess bool
		wantError   string
	}{
		{
			name:    "Valid purchase",
			payload: map[string]any{"eventName": "Purchase", "customData": map[string]any{"value": 49.9, "currency": "BRL"}},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
				m.On("Send", mock.Anything, mock.Anything).Return(map[string]any{"events_received": 1.0}, nil)
			},
			wantSuccess: true,
		},
		{
			name:        "Missing event name",
			payload:     map[string]any{"customData": map[string]any{}},
			setupMock:   func(m *MockForwarder) {},
			wantSuccess: false,
			wantError:   "eventName é obrigatório",
		},
		{
			name:    "Unknown event name",
			payload: map[string]any{"eventName": "MadeUpEvent"},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
			},
			wantSuccess: false,
			wantError:   "Evento não permitido: MadeUpEvent",
		},
		{
			name:    "Purchase without value and currency",
			payload: map[string]any{"eventName": "Purchase", "customData": map[string]any{"order_id": "42"}},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
			},
			wantSuccess: false,
			wantError:   "Evento Purchase requer value e currency",
		},
		{
			name:    "Subscribe without currency",
			payload: map[string]any{"eventName": "Subscribe", "customData": map[string]any{"value": 9.9}},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
			},
			wantSuccess: false,
			wantError:   "Evento Subscribe requer value e currency",
		},
		{
			name:    "Search without search string",
			payload: map[string]any{"eventName": "Search"},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
			},
			wantSuccess: false,
			wantError:   "Evento Search requer search_string",
		},
		{
			name:    "ViewContent without content name",
			payload: map[string]any{"eventName": "ViewContent", "customData": map[string]any{"content_category": "reports"}},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
			},
			wantSuccess: false,
			wantError:   "Evento ViewContent requer content_name",
		},
		{
			name:    "Access token not configured",
			payload: map[string]any{"eventName": "PageView"},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(false)
			},
			wantSuccess: false,
			wantError:   "Conversion API access token not configured",
		},
		{
			name:    "Upstream failure becomes error envelope",
			payload: map[string]any{"eventName": "Lead"},
			setupMock: func(m *MockForwarder) {
				m.On("Configured").Return(true)
				m.On("Send", mock.Anything, mock.Anything).Return(nil, assert.AnError)
			},
			wantSuccess: false,
			wantError:   "upstream request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockFwd := new(MockForwarder)
			tt.setupMock(mockFwd)

			handler := NewTrackHandler(logger, mockFwd, nil)

			w := performTrack(t, handler, tt.payload, "")

			// Every relay outcome is an HTTP 200 envelope
			assert.Equal(t, http.StatusOK, w.Code)

			var envelope Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
			assert.Equal(t, tt.wantSuccess, envelope.Success)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, envelope.Error)
			}
			mockFwd.AssertExpectations(t)
		})
	}
}

func TestHandleTrackRejectsBeforeForwarding(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockFwd := new(MockForwarder)
	mockFwd.On("Configured").Return(true)

	handler := NewTrackHandler(zap.NewNop(), mockFwd, nil)
	performTrack(t, handler, map[string]any{"eventName": "Search"}, "")

	// Validation failures must never reach the upstream API
	mockFwd.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleTrackHashesUserData(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var forwarded upstream.ServerEvent
	mockFwd := new(MockForwarder)
	mockFwd.On("Configured").Return(true)
	mockFwd.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			forwarded = args.Get(1).(upstream.ServerEvent)
		}).
		Return(map[string]any{}, nil)

	handler := NewTrackHandler(zap.NewNop(), mockFwd, map[string]any{"content_type": "product"})

	payload := map[string]any{
		"eventName": "Purchase",
		"eventId":   "event_1700000000000_abc123",
		"userData": map[string]any{
			"em":                []string{"User@Example.com "},
			"client_user_agent": "Mozilla/5.0",
			"click_id":          "fb.1.123.456",
			"client_ip_address": "",
		},
		"customData":     map[string]any{"value": 49.9, "currency": "BRL"},
		"eventSourceUrl": "https://app.example.com/checkout",
	}

	performTrack(t, handler, payload, "")

	assert.Equal(t, "Purchase", forwarded.EventName)
	assert.Equal(t, "website", forwarded.ActionSource)
	assert.Equal(t, "event_1700000000000_abc123", forwarded.EventID)
	assert.Equal(t, "https://app.example.com/checkout", forwarded.EventSourceURL)
	assert.NotZero(t, forwarded.EventTime)

	// Identifying fields leave the boundary as hex digests only
	emails, ok := forwarded.UserData["em"].([]string)
	require.True(t, ok)
	require.Len(t, emails, 1)
	assert.Regexp(t, hexDigest, emails[0])
	assert.NotContains(t, emails[0], "@")

	// Technical fields pass through unhashed
	assert.Equal(t, "Mozilla/5.0", forwarded.UserData["client_user_agent"])
	assert.Equal(t, "fb.1.123.456", forwarded.UserData["click_id"])

	// Empty client IP is dropped, not forwarded as ""
	_, present := forwarded.UserData["client_ip_address"]
	assert.False(t, present)

	// Catalog metadata merged into custom data
	assert.Equal(t, "product", forwarded.CustomData["content_type"])
	assert.Equal(t, 49.9, forwarded.CustomData["value"])
}

func TestHandleTrackRefererFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var forwarded upstream.ServerEvent
	mockFwd := new(MockForwarder)
	mockFwd.On("Configured").Return(true)
	mockFwd.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			forwarded = args.Get(1).(upstream.ServerEvent)
		}).
		Return(map[string]any{}, nil)

	handler := NewTrackHandler(zap.NewNop(), mockFwd, nil)
	performTrack(t, handler, map[string]any{"eventName": "PageView"}, "https://app.example.com/dashboard")

	assert.Equal(t, "https://app.example.com/dashboard", forwarded.EventSourceURL)
	// No client event id supplied, so the relay assigns one
	assert.Regexp(t, `^event_\d+_`, forwarded.EventID)
}

func performTrack(t *testing.T, handler *TrackHandler, payload any, referer string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/track", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.HandleTrack(c)
	return w
}

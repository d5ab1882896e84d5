package event

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameAllowed(t *testing.T) {
	for _, name := range []Name{PageView, Purchase, Lead, Search, ViewContent, Subscribe, AddToCart, InitiateCheckout, CompleteRegistration, Contact} {
		assert.True(t, name.Allowed(), "expected %s to be allowed", name)
	}

	assert.False(t, Name("Checkout").Allowed())
	assert.False(t, Name("purchase").Allowed(), "names are case sensitive")
	assert.False(t, Name("").Allowed())
}

func TestValidateCustomData(t *testing.T) {
	tests := []struct {
		name    string
		event   Name
		custom  map[string]any
		wantErr string
	}{
		{
			name:    "Unknown event",
			event:   "Invented",
			custom:  nil,
			wantErr: "Evento não permitido: Invented",
		},
		{
			name:   "Purchase with value and currency",
			event:  Purchase,
			custom: map[string]any{"value": 49.9, "currency": "BRL"},
		},
		{
			name:    "Purchase missing currency",
			event:   Purchase,
			custom:  map[string]any{"value": 49.9},
			wantErr: "Evento Purchase requer value e currency",
		},
		{
			name:    "AddToCart with nil custom data",
			event:   AddToCart,
			custom:  nil,
			wantErr: "Evento AddToCart requer value e currency",
		},
		{
			name:    "Subscribe with empty currency",
			event:   Subscribe,
			custom:  map[string]any{"value": 19.9, "currency": ""},
			wantErr: "Evento Subscribe requer value e currency",
		},
		{
			name:   "Search with query",
			event:  Search,
			custom: map[string]any{"search_string": "rent"},
		},
		{
			name:    "Search without query",
			event:   Search,
			custom:  map[string]any{},
			wantErr: "Evento Search requer search_string",
		},
		{
			name:   "ViewContent with content name",
			event:  ViewContent,
			custom: map[string]any{"content_name": "monthly-report"},
		},
		{
			name:    "ViewContent without content name",
			event:   ViewContent,
			custom:  nil,
			wantErr: "Evento ViewContent requer content_name",
		},
		{
			name:   "PageView needs nothing",
			event:  PageView,
			custom: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCustomData(tt.event, tt.custom)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestCustomDataConstructors(t *testing.T) {
	assert.NoError(t, ValidateCustomData(Purchase, Commerce(49.9, "BRL")))
	assert.NoError(t, ValidateCustomData(Search, SearchQuery("savings")))
	assert.NoError(t, ValidateCustomData(ViewContent, Content("report", "finance")))

	content := Content("report", "")
	_, hasCategory := content["content_category"]
	assert.False(t, hasCategory)
}

func TestNewID(t *testing.T) {
	id := NewID()

	require.True(t, strings.HasPrefix(id, "event_"), "id %q should carry the event_ prefix", id)
	parts := strings.SplitN(id, "_", 3)
	require.Len(t, parts, 3)
	assert.NotEmpty(t, parts[1])
	assert.NotEmpty(t, parts[2])

	// Ids must be unique per call; they are the dedup key
	assert.NotEqual(t, id, NewID())
}

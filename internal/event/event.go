package event

import "fmt"

// Name is a conversion event type. The set is closed: the relay rejects
// anything it does not recognize, while emitters stay permissive and let
// the relay be the single authority on what is trackable.
type Name string

const (
	PageView             Name = "PageView"
	ViewContent          Name = "ViewContent"
	Search               Name = "Search"
	AddToCart            Name = "AddToCart"
	InitiateCheckout     Name = "InitiateCheckout"
	Purchase             Name = "Purchase"
	Lead                 Name = "Lead"
	CompleteRegistration Name = "CompleteRegistration"
	Contact              Name = "Contact"
	Subscribe            Name = "Subscribe"
)

var allowedNames = map[Name]struct{}{
	PageView:             {},
	ViewContent:          {},
	Search:               {},
	AddToCart:            {},
	InitiateCheckout:     {},
	Purchase:             {},
	Lead:                 {},
	CompleteRegistration: {},
	Contact:              {},
	Subscribe:            {},
}

// Allowed reports whether the name belongs to the fixed event set.
func (n Name) Allowed() bool {
	_, ok := allowedNames[n]
	return ok
}

// Event is the unit of work flowing from an emitter through the relay to
// the upstream conversion API.
type Event struct {
	Name       Name           `json:"eventName" bson:"event_name"`
	ID         string         `json:"eventId,omitempty" bson:"event_id"`
	Time       int64          `json:"eventTime,omitempty" bson:"event_time"`
	UserData   map[string]any `json:"userData,omitempty" bson:"user_data,omitempty"`
	CustomData map[string]any `json:"customData,omitempty" bson:"custom_data,omitempty"`
	SourceURL  string         `json:"eventSourceUrl,omitempty" bson:"event_source_url,omitempty"`
}

// FailedEvent is an event that exhausted its retries, plus the moment it
// was given up on. Events older than the retention window are discarded
// by the next drain regardless of outcome.
type FailedEvent struct {
	Event     Event `json:"event" bson:"event"`
	Timestamp int64 `json:"timestamp" bson:"timestamp"`
}

// ValidateCustomData enforces the per-event required fields. Messages are
// the product copy returned to callers, hence the mixed language.
func ValidateCustomData(name Name, custom map[string]any) error {
	if !name.Allowed() {
		return fmt.Errorf("Evento não permitido: %s", name)
	}

	switch name {
	case Purchase, Subscribe, AddToCart:
		if !hasField(custom, "value") || !hasField(custom, "currency") {
			return fmt.Errorf("Evento %s requer value e currency", name)
		}
	case Search:
		if !hasField(custom, "search_string") {
			return fmt.Errorf("Evento %s requer search_string", name)
		}
	case ViewContent:
		if !hasField(custom, "content_name") {
			return fmt.Errorf("Evento %s requer content_name", name)
		}
	}

	return nil
}

func hasField(custom map[string]any, key string) bool {
	if custom == nil {
		return false
	}
	v, ok := custom[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

// Commerce builds the custom data for value-carrying events
// (Purchase, Subscribe, AddToCart, InitiateCheckout).
func Commerce(value float64, currency string) map[string]any {
	return map[string]any{"value": value, "currency": currency}
}

// SearchQuery builds the custom data for Search events.
func SearchQuery(query string) map[string]any {
	return map[string]any{"search_string": query}
}

// Content builds the custom data for ViewContent events.
func Content(name, category string) map[string]any {
	data := map[string]any{"content_name": name}
	if category != "" {
		data["content_category"] = category
	}
	return data
}

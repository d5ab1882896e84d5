package store

import (
	"context"
	"time"

	"conversion-relay/internal/event"
)

// RetentionWindow is how long a failed event stays eligible for replay.
// Anything older is discarded by the next drain, successful or not.
const RetentionWindow = 24 * time.Hour

// FailedEventStore holds events that exhausted their dispatch retries
// until the periodic drain picks them up again.
type FailedEventStore interface {
	// Append adds one failed event to the store.
	Append(ctx context.Context, fe event.FailedEvent) error
	// Load returns every stored failed event.
	Load(ctx context.Context) ([]event.FailedEvent, error)
	// Replace overwrites the stored set with the given events. Drains
	// call it with the subset that is still unresent and still young.
	Replace(ctx context.Context, events []event.FailedEvent) error
}

// Partition splits failed events into those still inside the retention
// window and those past it, relative to now.
func Partition(events []event.FailedEvent, now time.Time) (young, old []event.FailedEvent) {
	cutoff := now.Add(-RetentionWindow).UnixMilli()
	for _, fe := range events {
		if fe.Timestamp >= cutoff {
			young = append(young, fe)
		} else {
			old = append(old, fe)
		}
	}
	return young, old
}

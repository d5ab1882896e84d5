package emitter

// Status is the terminal outcome of a Track call.
type Status string

const (
	// StatusDelivered means the relay accepted and forwarded the event.
	StatusDelivered Status = "delivered"
	// StatusSuppressed means the deduplication cache swallowed the
	// dispatch; no relay call was made.
	StatusSuppressed Status = "suppressed"
	// StatusQueued means retries were exhausted and the event sits in
	// the failed-event store awaiting the next drain.
	StatusQueued Status = "queued"
	// StatusDropped means retries were exhausted and queueing failed
	// too; the event is gone.
	StatusDropped Status = "dropped"
)

// Result is what Track hands back instead of an error. Callers that
// do not care can ignore it; callers that do can branch on Status or
// inspect Err without any failure ever propagating as a panic or an
// error return into application flow.
type Result struct {
	Status   Status
	Response map[string]any
	Err      error
}

// Delivered reports whether the event reached the upstream API via the
// relay on this call.
func (r Result) Delivered() bool {
	return r.Status == StatusDelivered
}

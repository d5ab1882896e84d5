package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a fresh event id in the event_<millis>_<random> form
// shared by emitters and the relay. The id doubles as the deduplication
// key client-side and the idempotency key presented upstream.
func NewID() string {
	random := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("event_%d_%s", time.Now().UnixMilli(), random)
}

package realtime

import (
	"time"

	"loom/cmd/identity/ids"
)

// NewConnID returns a ULID used as the ephemeral websocket connection id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewConnID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

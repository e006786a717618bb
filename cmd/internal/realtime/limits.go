package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	// Doc updates are relayed opaquely, so this also bounds relay size.
	maxFrameBytes = 256 << 10 // 256 KiB

	// Max descriptor display-name length (runes).
	maxNameChars = 128
)

const (
	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

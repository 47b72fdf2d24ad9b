package realtime

import "time"

// Frame limits for inbound client frames.
const (
	// Clients only send control frames; anything larger is abuse.
	maxFramePayload = 64 << 10 // 64 KiB

	// RFC 6455 caps a close reason at 123 bytes (125 minus the status code).
	maxCloseReason = 123
)

const (
	defaultBroadcastInterval = 20 * time.Millisecond
	defaultWriteTimeout      = 5 * time.Second
	defaultUpgradeTimeout    = 5 * time.Second

	defaultShutdownGrace = 2 * time.Second
	defaultCloseGrace    = 2 * time.Second

	// Best-effort close frames must not hold up teardown.
	closeFrameTimeout = 250 * time.Millisecond
)

package companion

// ConnectionState tracks where a live session is in its lifecycle.
type ConnectionState int

const (
	// StateIdle means no session is running and none is being set up.
	StateIdle ConnectionState = iota
	// StateAcquiring means capture devices are being requested.
	StateAcquiring
	// StateConnecting means the websocket handshake is in flight.
	StateConnecting
	// StateLive means the session is streaming in both directions.
	StateLive
	// StateRetrying means a transient failure occurred and a reconnect
	// attempt is pending.
	StateRetrying
	// StateFailed means the session ended with an unrecoverable error.
	StateFailed
	// StateClosed means the session ended cleanly.
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session has ended and will not progress
// without a fresh Start.
func (s ConnectionState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

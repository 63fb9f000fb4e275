package companion

import (
	"errors"
	"strings"
	"time"
)

// Retry policy defaults. Delays grow linearly: 2s, 4s, 6s.
const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 2 * time.Second
)

// Marker substrings for classifying connection failures. The transport
// does not expose structured error codes, so classification is a
// best-effort scan of the failure text.
var (
	transientMarkers = []string{"unavailable", "503", "disconnect", "network", "fetch", "abort"}
	deniedMarkers    = []string{"permission", "403"}
)

// Classify maps a connection failure onto the session error taxonomy.
// Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return &Error{Kind: KindTransientNetwork, Message: err.Error(), Cause: err}
		}
	}
	for _, marker := range deniedMarkers {
		if strings.Contains(msg, marker) {
			return &Error{Kind: KindAuthorizationRejected, Message: err.Error(), Cause: err}
		}
	}
	return &Error{Kind: KindUnclassified, Message: err.Error(), Cause: err}
}

// RetryBudget drives bounded reconnect attempts. It is owned by the
// session loop; only that loop mutates it, so no locking is needed.
type RetryBudget struct {
	maxAttempts  int
	baseDelay    time.Duration
	attemptsUsed int
}

// NewRetryBudget returns a budget with the given limits. Non-positive
// arguments fall back to the defaults.
func NewRetryBudget(maxAttempts int, baseDelay time.Duration) *RetryBudget {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}
	return &RetryBudget{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Next consumes one attempt and returns the delay to observe before
// reconnecting. ok is false once the budget is exhausted; the caller
// must then fail the session instead of retrying.
func (b *RetryBudget) Next() (delay time.Duration, ok bool) {
	if b.attemptsUsed >= b.maxAttempts {
		return 0, false
	}
	b.attemptsUsed++
	return time.Duration(b.attemptsUsed) * b.baseDelay, true
}

// Reset restores the full budget. Called every time the session reaches
// the live state so each stable stretch earns a fresh allowance.
func (b *RetryBudget) Reset() {
	b.attemptsUsed = 0
}

// Used reports attempts consumed since the last reset.
func (b *RetryBudget) Used() int {
	return b.attemptsUsed
}

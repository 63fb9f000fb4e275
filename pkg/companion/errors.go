package companion

import "fmt"

// ErrorKind categorizes session failures. The kind decides both the
// reconnect behavior and the short reason string surfaced to the UI.
type ErrorKind string

const (
	// KindPermissionDenied means the user refused microphone access.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindConfigurationMissing means a required credential is absent.
	KindConfigurationMissing ErrorKind = "configuration_missing"
	// KindTransientNetwork means the failure looks recoverable and the
	// session may reconnect.
	KindTransientNetwork ErrorKind = "transient_network"
	// KindAuthorizationRejected means the endpoint refused the credential.
	KindAuthorizationRejected ErrorKind = "authorization_rejected"
	// KindUnclassified covers everything the classifier cannot place.
	KindUnclassified ErrorKind = "unclassified"
)

// Reason returns the short user-facing string for this kind. These
// strings are stable; UI layers match on them directly.
func (k ErrorKind) Reason() string {
	switch k {
	case KindPermissionDenied:
		return "Mic access denied"
	case KindConfigurationMissing:
		return "API Key Missing"
	case KindTransientNetwork:
		return "Network Error"
	case KindAuthorizationRejected:
		return "Access Denied"
	default:
		return "Connection Failed"
	}
}

// Error is a classified session failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the session loop may spend a reconnect
// attempt on this failure.
func (e *Error) Retryable() bool { return e.Kind == KindTransientNetwork }

// NewPermissionError reports a refused capture device.
func NewPermissionError(message string, cause error) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message, Cause: cause}
}

// NewConfigurationError reports missing configuration such as an API key.
func NewConfigurationError(message string) *Error {
	return &Error{Kind: KindConfigurationMissing, Message: message}
}

// NewNetworkError reports a transient transport failure.
func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindTransientNetwork, Message: message, Cause: cause}
}

// NewAuthorizationError reports a credential the endpoint rejected.
func NewAuthorizationError(message string, cause error) *Error {
	return &Error{Kind: KindAuthorizationRejected, Message: message, Cause: cause}
}

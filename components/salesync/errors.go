package salesync

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing the backend boundary so callers can
// decide between retrying, surfacing inline, or degrading the view.
type ErrorKind string

const (
	// KindTimeout marks a request cancelled after the gateway deadline expired.
	KindTimeout ErrorKind = "timeout"
	// KindNetworkUnreachable marks connection-level failures where the server
	// never produced a response.
	KindNetworkUnreachable ErrorKind = "network_unreachable"
	// KindServerError marks non-2xx responses; the server answered but refused.
	KindServerError ErrorKind = "server_error"
	// KindValidation marks rejected payloads (imports, edits) with an
	// actionable message from the server.
	KindValidation ErrorKind = "validation"
	// KindExhaustedRetries marks a supervisor that ran out of retry budget.
	KindExhaustedRetries ErrorKind = "exhausted_retries"
)

// Error is the tagged failure type returned by the gateway and supervisors.
// It never escapes as a panic; every component hands it back as a value.
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status for KindServerError / KindValidation
	Field   string // offending field for KindValidation, when known
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("salesync: %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("salesync: %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("salesync: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("salesync: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// TimeoutError wraps a deadline expiry.
func TimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Err: err}
}

// UnreachableError wraps a transport failure that never reached the server.
func UnreachableError(err error) *Error {
	return &Error{Kind: KindNetworkUnreachable, Err: err}
}

// ServerFailure wraps a non-2xx response.
func ServerFailure(status int, message string) *Error {
	return &Error{Kind: KindServerError, Status: status, Message: message}
}

// ValidationFailure wraps a rejected payload. field may be empty when the
// server does not identify one.
func ValidationFailure(status int, field, message string) *Error {
	return &Error{Kind: KindValidation, Status: status, Field: field, Message: message}
}

// ExhaustedError reports a supervisor that spent its whole retry budget.
func ExhaustedError(attempts int, last error) *Error {
	return &Error{
		Kind:    KindExhaustedRetries,
		Message: fmt.Sprintf("gave up after %d attempts", attempts),
		Err:     last,
	}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
func KindOf(err error) (ErrorKind, bool) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// Retryable reports whether the failure is worth another attempt. Server
// validation rejections are deterministic and never retried.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return true
	}
	switch kind {
	case KindValidation, KindExhaustedRetries:
		return false
	default:
		return true
	}
}

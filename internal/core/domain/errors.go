package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// The document client returns it when the remote API has no detail for a uuid.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSyncInProgress indicates a sync cycle is already running.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrRateLimited indicates the API rate limit was exceeded and retries are exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrTokenRefreshFailed indicates the identity endpoint did not issue a credential.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// Persistence Errors.

	// ErrPersistence indicates a single document or batch could not be written.
	// The cycle continues with the next document.
	ErrPersistence = errors.New("persistence failed")

	// ErrStoreUnavailable indicates the database itself cannot be reached.
	// It is fatal to the sync cycle.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// AuthError reports that a credential could not be issued, either because
// the identity endpoint rejected the client or because it was unreachable.
type AuthError struct {
	// Status is the HTTP status returned by the identity endpoint, 0 if unreachable.
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth: identity endpoint returned %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("auth: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error { return e.Err }

// Is reports ErrTokenRefreshFailed as a match so callers can use errors.Is.
func (e *AuthError) Is(target error) bool { return target == ErrTokenRefreshFailed }

// TransportErrorKind classifies a failed remote call.
type TransportErrorKind string

const (
	// TransportNetwork covers connection failures and timeouts.
	TransportNetwork TransportErrorKind = "network"
	// TransportHTTP4xx covers client errors other than 429.
	TransportHTTP4xx TransportErrorKind = "http_4xx"
	// TransportHTTP5xx covers server errors other than 503 after retries.
	TransportHTTP5xx TransportErrorKind = "http_5xx"
	// TransportRateLimited covers 429/503 responses after retries are exhausted.
	TransportRateLimited TransportErrorKind = "rate_limited"
)

// TransportError is returned by the rate-limited transport once its retry
// policy has given up on a request.
type TransportError struct {
	Kind     TransportErrorKind
	Status   int
	Method   string
	URL      string
	Body     string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport: %s %s failed (%s", e.Method, e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(", status %d", e.Status)
	}
	msg += fmt.Sprintf(", %d attempts)", e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *TransportError) Unwrap() error { return e.Err }

// Is maps rate-limited failures onto ErrRateLimited and 404s onto ErrNotFound.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == TransportRateLimited
	case ErrNotFound:
		return e.Status == 404
	}
	return false
}

// IsTransportKind reports whether err is a TransportError of the given kind.
func IsTransportKind(err error, kind TransportErrorKind) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// IsFatalToCycle reports whether err must stop a sync cycle rather than
// being recorded against a single document.
func IsFatalToCycle(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether a transport failure may succeed in a later cycle.
// Client errors other than throttling will not.
func IsRetryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind != TransportHTTP4xx
}

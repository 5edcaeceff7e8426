package cube

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure modes the remote service produces. Callers
// match with errors.Is; the concrete error in the chain is usually an
// *APIError carrying the request that failed.
var (
	// ErrInvalidCredentials indicates the configured username/password pair
	// was rejected by the login endpoint.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken indicates a manually supplied bearer token was rejected
	// by the service. Manual tokens are never refreshed: once rejected, every
	// subsequent operation fails with this error.
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrLoginFailed indicates the single re-authentication retry was
	// exhausted: the request was rejected again after a fresh login.
	ErrLoginFailed = errors.New("login failed")

	// ErrPageNotFound indicates the requested resource does not exist (404).
	ErrPageNotFound = errors.New("page not found")

	// ErrRateLimited indicates the service is rate-limiting the client (429).
	// The session never retries these; backoff policy belongs to the caller.
	ErrRateLimited = errors.New("rate limited by remote service")

	// ErrSomethingWentWrong is the catch-all for unexpected status codes and
	// structurally malformed payloads.
	ErrSomethingWentWrong = errors.New("unexpected remote response")
)

// APIError describes a failed request against the remote API. It wraps one of
// the package sentinels (and the transport error, when there was one), so both
// errors.Is matching and status inspection work.
type APIError struct {
	Method string
	URL    string
	Status int

	kind  error
	cause error
}

func (e *APIError) Error() string {
	switch {
	case e.cause != nil && e.Status == 0:
		return fmt.Sprintf("%s %s: %v: %v", e.Method, e.URL, e.kind, e.cause)
	case e.Status != 0:
		return fmt.Sprintf("%s %s: %v (HTTP %d)", e.Method, e.URL, e.kind, e.Status)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.kind)
	}
}

func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// statusError maps a non-2xx response status onto the error taxonomy.
func statusError(method, url string, status int) *APIError {
	var kind error
	switch status {
	case http.StatusNotFound:
		kind = ErrPageNotFound
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	default:
		kind = ErrSomethingWentWrong
	}

	return &APIError{Method: method, URL: url, Status: status, kind: kind}
}

// transportError wraps a failure that happened before any status was
// received: connection refused, DNS failure, context cancellation and the
// like. The original cause stays reachable through errors.Is/As.
func transportError(method, url string, cause error) *APIError {
	return &APIError{Method: method, URL: url, kind: ErrSomethingWentWrong, cause: cause}
}

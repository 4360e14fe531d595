package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
)

// Common errors returned by the client. An *APIError matches the sentinel of
// its kind with errors.Is.
var (
	// ErrUnauthorized is returned for 401 and 403 responses (bad or revoked token).
	ErrUnauthorized = errors.New("discogs: unauthorized")

	// ErrNotFound is returned for 404 responses (unknown user or resource).
	ErrNotFound = errors.New("discogs: not found")

	// ErrUpstreamRateLimited is returned when Discogs answers 429.
	ErrUpstreamRateLimited = errors.New("discogs: rate limited upstream")

	// ErrNetwork is returned for transport failures and timeouts.
	ErrNetwork = errors.New("discogs: network error")

	// ErrUnexpectedStatus is returned for every other non-2xx status.
	ErrUnexpectedStatus = errors.New("discogs: unexpected status")

	// ErrUsernameRequired is returned when a user resource is requested
	// without a username.
	ErrUsernameRequired = errors.New("username is required")
)

// ErrorKind classifies a failed Discogs call.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindNetwork      ErrorKind = "network"
	KindUnknown      ErrorKind = "unknown"
)

// APIError is a failed Discogs call with the quota observed on the response.
type APIError struct {
	Kind       ErrorKind
	Resource   Resource
	StatusCode int
	Message    string

	// Quota is nil when the response carried no rate limit headers.
	Quota *ratelimit.QuotaState

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discogs %s error on %s (status %d): %s: %v",
			e.Kind, e.Resource, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("discogs %s error on %s (status %d): %s",
		e.Kind, e.Resource, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the kind.
func (e *APIError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrUpstreamRateLimited
	case KindNetwork:
		return ErrNetwork
	default:
		return ErrUnexpectedStatus
	}
}

// KindOf returns the kind of err, KindUnknown for errors that did not come
// from the client, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// classifyStatus maps an HTTP error status to its kind.
func classifyStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindUnknown
	}
}

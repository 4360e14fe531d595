package cache

import (
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/client"
)

// Entry is the last known state of one category.
type Entry struct {
	Category Category

	// Value is the last successfully fetched value, nil before the first success.
	Value Value

	// FetchedAt is the time of the last attempt, successful or not.
	FetchedAt time.Time

	// SucceededAt is the time of the last successful fetch.
	SucceededAt time.Time

	RefreshInterval time.Duration

	// LastError is the error of the last attempt, nil after a success.
	LastError     error
	LastErrorKind client.ErrorKind

	ConsecutiveFailures int
}

// HasValue reports whether a fetch ever succeeded.
func (e Entry) HasValue() bool {
	return e.Value != nil
}

// Available reports whether the entry should be presented. It turns false
// once threshold consecutive fetches failed, or before any value exists.
func (e Entry) Available(threshold int) bool {
	if !e.HasValue() {
		return false
	}
	return threshold <= 0 || e.ConsecutiveFailures < threshold
}

// Age returns how long ago the current value was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	if e.SucceededAt.IsZero() {
		return 0
	}
	return now.Sub(e.SucceededAt)
}

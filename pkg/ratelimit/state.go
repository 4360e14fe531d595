// Package ratelimit implements Discogs API quota tracking and request gating.
// It reconciles the X-Discogs-Ratelimit* headers reported by the upstream API
// with a local call budget so that polling and bulk exports never drain the
// per-minute quota.
package ratelimit

import (
	"time"
)

// Quota defaults for authenticated Discogs requests.
const (
	// DefaultLimit is the number of calls Discogs allows per window.
	DefaultLimit = 60

	// DefaultWindow is the length of the Discogs moving rate limit window.
	DefaultWindow = 60 * time.Second
)

// Thresholds for rate limit decisions.
const (
	// DefaultSoftFloor blocks all requests once remaining calls would drop below it.
	// This keeps a small reserve for manual refreshes and late responses.
	DefaultSoftFloor = 5

	// WarningPercent marks the quota as unhealthy when fewer than this share of
	// the limit remains.
	WarningPercent = 25
)

// QuotaState is the remaining-calls budget reported by Discogs.
type QuotaState struct {
	// Remaining is the number of calls left in the current window.
	// Extracted from the X-Discogs-Ratelimit-Remaining header.
	Remaining int `json:"remaining"`

	// Limit is the total number of calls allowed per window.
	// Extracted from the X-Discogs-Ratelimit header.
	Limit int `json:"limit"`

	// Used is the number of calls consumed in the current window.
	// Extracted from the X-Discogs-Ratelimit-Used header.
	Used int `json:"used"`

	// ResetAt is when the reported figures stop describing the window.
	// Discogs does not send it; the limiter derives it from LastUpdated.
	ResetAt *time.Time `json:"reset_at,omitempty"`

	// LastUpdated is when the headers were observed.
	LastUpdated time.Time `json:"last_updated"`
}

// IsStale returns true if the state is older than the given window at now.
func (s *QuotaState) IsStale(now time.Time, window time.Duration) bool {
	if s.LastUpdated.IsZero() {
		return true
	}
	return now.Sub(s.LastUpdated) >= window
}

// BelowFloor returns true if spending cost calls would leave fewer than floor.
func (s *QuotaState) BelowFloor(cost, floor int) bool {
	return s.Remaining-cost < floor
}

// TimeUntilReset returns the duration until the reported window resets.
// Returns 0 if the reset time is unknown or has already passed.
func (s *QuotaState) TimeUntilReset(now time.Time) time.Duration {
	if s.ResetAt == nil {
		return 0
	}
	duration := s.ResetAt.Sub(now)
	if duration < 0 {
		return 0
	}
	return duration
}

// normalize clamps the state into its invariants: Limit > 0 and
// 0 <= Remaining <= Limit.
func (s *QuotaState) normalize() {
	if s.Limit <= 0 {
		s.Limit = DefaultLimit
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if s.Remaining > s.Limit {
		s.Remaining = s.Limit
	}
	if s.Used < 0 {
		s.Used = 0
	}
}

// Status is the read-only view of the limiter used by health indicators.
type Status struct {
	Remaining   int        `json:"remaining"`
	Limit       int        `json:"limit"`
	Used        int        `json:"used"`
	ResetAt     *time.Time `json:"reset_at,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	Exceeded    bool       `json:"exceeded"`
	Healthy     bool       `json:"healthy"`
	Reported    bool       `json:"reported"`
}

// PercentUsed returns the share of the limit spent, rounded to one decimal.
func (s Status) PercentUsed() float64 {
	if s.Limit <= 0 {
		return 0
	}
	used := s.Limit - s.Remaining
	if s.Used > used {
		used = s.Used
	}
	return float64(int(float64(used)/float64(s.Limit)*1000+0.5)) / 10
}

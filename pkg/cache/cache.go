package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/client"
)

var (
	// ErrUnknownCategory is returned for names outside the category set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidInterval is returned for refresh intervals <= 0.
	ErrInvalidInterval = errors.New("refresh interval must be > 0")

	// ErrNilValue is returned by Update when a success carries no value.
	ErrNilValue = errors.New("value cannot be nil on success")
)

// DefaultFailureThreshold is the number of consecutive failures after which
// an entry is presented as unavailable.
const DefaultFailureThreshold = 3

// Config holds cache configuration.
type Config struct {
	// Account labels metrics.
	Account string

	// Intervals per category. Missing categories use DefaultIntervals.
	Intervals map[Category]time.Duration

	// FailureThreshold defaults to DefaultFailureThreshold.
	FailureThreshold int
}

// Cache holds the last known good value of every category.
// It is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	account   string
	threshold int
	entries   map[Category]*Entry
}

// New creates a cache with an empty entry for every category.
func New(cfg Config) (*Cache, error) {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	if threshold < 0 {
		return nil, fmt.Errorf("failure threshold must be > 0 (got %d)", threshold)
	}

	intervals := DefaultIntervals()
	for cat, d := range cfg.Intervals {
		if !cat.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: %w", cat, ErrInvalidInterval)
		}
		intervals[cat] = d
	}

	c := &Cache{
		account:   cfg.Account,
		threshold: threshold,
		entries:   make(map[Category]*Entry, len(intervals)),
	}
	for _, cat := range Categories() {
		c.entries[cat] = &Entry{Category: cat, RefreshInterval: intervals[cat]}
		consecutiveFailures.WithLabelValues(cfg.Account, string(cat)).Set(0)
	}
	return c, nil
}

// Get returns a copy of the entry of category.
func (c *Cache) Get(category Category) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[category]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries in category order.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, cat := range Categories() {
		out = append(out, *c.entries[cat])
	}
	return out
}

// IsStale reports whether category is due for a fetch at now: it never
// succeeded, or its last attempt is at least one refresh interval old.
// Unknown categories are never stale.
func (c *Cache) IsStale(category Category, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[category]
	if !ok {
		return false
	}
	if !e.HasValue() {
		return true
	}
	return now.Sub(e.FetchedAt) >= e.RefreshInterval
}

// Update records the outcome of a fetch at now. A nil err stores value and
// clears the failure state; a non-nil err keeps the prior value and only
// advances FetchedAt, LastError and ConsecutiveFailures.
func (c *Cache) Update(category Category, value Value, err error, now time.Time) error {
	if err == nil && value == nil {
		return ErrNilValue
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[category]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	e.FetchedAt = now
	if err != nil {
		e.LastError = err
		e.LastErrorKind = client.KindOf(err)
		e.ConsecutiveFailures++
		categoryFetches.WithLabelValues(c.account, string(category), "failure").Inc()
	} else {
		e.Value = value
		e.SucceededAt = now
		e.LastError = nil
		e.LastErrorKind = ""
		e.ConsecutiveFailures = 0
		categoryFetches.WithLabelValues(c.account, string(category), "success").Inc()
	}
	consecutiveFailures.WithLabelValues(c.account, string(category)).Set(float64(e.ConsecutiveFailures))
	return nil
}

// SetInterval changes the refresh interval of category.
func (c *Cache) SetInterval(category Category, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s: %w", category, ErrInvalidInterval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[category]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	e.RefreshInterval = d
	return nil
}

// FailureThreshold returns the effective failure threshold.
func (c *Cache) FailureThreshold() int {
	return c.threshold
}

// Package sensor turns coordinator state into presentation readings: one
// reading per polled value plus the rate limit problem indicator.
package sensor

import (
	"fmt"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
)

// Reading keys.
const (
	KeyCollection            = "collection"
	KeyWantlist              = "wantlist"
	KeyRandomRecord          = "random_record"
	KeyCollectionValueMin    = "collection_value_min"
	KeyCollectionValueMedian = "collection_value_median"
	KeyCollectionValueMax    = "collection_value_max"
	KeyRateLimit             = "rate_limit"
)

const (
	UnitRecords = "records"

	IconRecord = "mdi:album"
	IconPlayer = "mdi:record-player"
	IconCash   = "mdi:cash"
	IconAPI    = "mdi:api"
)

// TimeFormat is used for time attributes.
const TimeFormat = "2006-01-02 15:04:05"

// Source is what a snapshot is captured from. *coordinator.Coordinator
// implements it.
type Source interface {
	Account() string
	Username() string
	Entries() []cache.Entry
	Quota(now time.Time) ratelimit.Status
	FailureThreshold() int
	Currency() string
}

// Snapshot is a consistent copy of one account's state.
type Snapshot struct {
	Account          string
	Username         string
	Currency         string
	Entries          map[cache.Category]cache.Entry
	Quota            ratelimit.Status
	FailureThreshold int
	TakenAt          time.Time
}

// Capture copies the state of src at now.
func Capture(src Source, now time.Time) Snapshot {
	entries := src.Entries()
	s := Snapshot{
		Account:          src.Account(),
		Username:         src.Username(),
		Currency:         src.Currency(),
		Entries:          make(map[cache.Category]cache.Entry, len(entries)),
		Quota:            src.Quota(now),
		FailureThreshold: src.FailureThreshold(),
		TakenAt:          now,
	}
	for _, e := range entries {
		s.Entries[e.Category] = e
	}
	return s
}

// Reading is one presented value. State is nil while the reading is
// unavailable or has no data.
type Reading struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	State       any            `json:"state"`
	Unit        string         `json:"unit,omitempty"`
	Icon        string         `json:"icon"`
	Available   bool           `json:"available"`
	LastUpdated *time.Time     `json:"last_updated,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// StateString renders State for tables.
func (r Reading) StateString() string {
	switch {
	case !r.Available:
		return "unavailable"
	case r.State == nil:
		return "unknown"
	}
	switch v := r.State.(type) {
	case float64:
		if r.Unit != "" {
			return fmt.Sprintf("%s%.2f", r.Unit, v)
		}
		return fmt.Sprintf("%.2f", v)
	case bool:
		if v {
			return "on"
		}
		return "off"
	default:
		return fmt.Sprint(v)
	}
}

// Readings returns the readings of s in presentation order.
func Readings(s Snapshot) []Reading {
	value := s.Entries[cache.CategoryCollectionValue]
	return []Reading{
		s.count(KeyCollection, "Collection", cache.CategoryCollectionCount),
		s.count(KeyWantlist, "Wantlist", cache.CategoryWantlistCount),
		s.randomRecord(),
		s.price(KeyCollectionValueMin, "Collection Value (Min)", value, func(p cache.PriceStats) float64 { return p.Min }),
		s.price(KeyCollectionValueMedian, "Collection Value (Median)", value, func(p cache.PriceStats) float64 { return p.Median }),
		s.price(KeyCollectionValueMax, "Collection Value (Max)", value, func(p cache.PriceStats) float64 { return p.Max }),
		RateLimit(s.Quota),
	}
}

// base fills the fields shared by every category reading.
func (s Snapshot) base(key, name, icon string, e cache.Entry) Reading {
	r := Reading{
		Key:        key,
		Name:       name,
		Icon:       icon,
		Available:  e.Available(s.FailureThreshold),
		Attributes: map[string]any{},
	}
	if s.Username != "" {
		r.Attributes["user"] = s.Username
	}
	if !e.SucceededAt.IsZero() {
		t := e.SucceededAt
		r.LastUpdated = &t
		r.Attributes["last_updated"] = t.Format(TimeFormat)
	}
	if e.LastError != nil {
		r.LastError = e.LastError.Error()
		r.Attributes["last_error_kind"] = string(e.LastErrorKind)
		r.Attributes["consecutive_failures"] = e.ConsecutiveFailures
	}
	return r
}

func (s Snapshot) count(key, name string, cat cache.Category) Reading {
	e := s.Entries[cat]
	r := s.base(key, name, IconRecord, e)
	r.Unit = UnitRecords
	if c, ok := e.Value.(cache.Count); ok && r.Available {
		r.State = c.N
	}
	return r
}

func (s Snapshot) randomRecord() Reading {
	e := s.Entries[cache.CategoryRandomRecord]
	r := s.base(KeyRandomRecord, "Random Record", IconPlayer, e)
	rec, ok := e.Value.(cache.RandomRecord)
	if !ok || !r.Available {
		return r
	}
	r.State = rec.Title
	r.Attributes["cat_no"] = rec.CatNo
	r.Attributes["cover_image"] = rec.CoverImage
	r.Attributes["format"] = rec.Format
	r.Attributes["label"] = rec.Label
	r.Attributes["released"] = rec.Released
	r.Attributes["exact"] = rec.Exact
	r.Attributes["pool_size"] = rec.PoolSize
	return r
}

func (s Snapshot) price(key, name string, e cache.Entry, pick func(cache.PriceStats) float64) Reading {
	r := s.base(key, name, IconCash, e)
	stats, ok := e.Value.(cache.PriceStats)
	r.Unit = s.Currency
	if ok && stats.Currency != "" {
		r.Unit = stats.Currency
	}
	if !ok || !r.Available {
		return r
	}
	r.Attributes["item_count"] = stats.ItemCount
	if stats.NoData {
		r.Attributes["no_data"] = true
		return r
	}
	r.State = pick(stats)
	return r
}

// RateLimit returns the problem indicator: State is true while the quota
// is exhausted. It is unavailable until Discogs reported a quota.
func RateLimit(q ratelimit.Status) Reading {
	r := Reading{
		Key:       KeyRateLimit,
		Name:      "Rate Limit",
		State:     q.Exceeded,
		Icon:      IconAPI,
		Available: q.Reported,
		Attributes: map[string]any{
			"total_limit":  q.Limit,
			"used":         q.Limit - q.Remaining,
			"remaining":    q.Remaining,
			"percent_used": fmt.Sprintf("%.1f%%", q.PercentUsed()),
			"healthy":      q.Healthy,
		},
	}
	if q.Used > 0 {
		r.Attributes["used"] = q.Used
	}
	if !q.LastUpdated.IsZero() {
		t := q.LastUpdated
		r.LastUpdated = &t
		r.Attributes["last_response"] = t.Format(TimeFormat)
	}
	if q.Exceeded && q.ResetAt != nil {
		r.Attributes["reset_time"] = q.ResetAt.Format(TimeFormat)
	}
	return r
}

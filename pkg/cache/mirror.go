package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in Redis
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the published record is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultMirrorTTL is how long published records live without a refresh.
const DefaultMirrorTTL = time.Hour

// Snapshot is the published form of an Entry.
type Snapshot struct {
	Account             string          `json:"account"`
	Category            Category        `json:"category"`
	ValueType           string          `json:"value_type,omitempty"`
	Value               json.RawMessage `json:"value,omitempty"`
	FetchedAt           time.Time       `json:"fetched_at"`
	SucceededAt         time.Time       `json:"succeeded_at"`
	RefreshInterval     time.Duration   `json:"refresh_interval"`
	LastError           string          `json:"last_error,omitempty"`
	LastErrorKind       string          `json:"last_error_kind,omitempty"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Available           bool            `json:"available"`
	PublishedAt         time.Time       `json:"published_at"`
}

// NewSnapshot converts an entry for publication.
func NewSnapshot(account string, e Entry, threshold int, now time.Time) (Snapshot, error) {
	typ, data, err := EncodeValue(e.Value)
	if err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{
		Account:             account,
		Category:            e.Category,
		ValueType:           typ,
		Value:               data,
		FetchedAt:           e.FetchedAt,
		SucceededAt:         e.SucceededAt,
		RefreshInterval:     e.RefreshInterval,
		LastErrorKind:       string(e.LastErrorKind),
		ConsecutiveFailures: e.ConsecutiveFailures,
		Available:           e.Available(threshold),
		PublishedAt:         now,
	}
	if e.LastError != nil {
		s.LastError = e.LastError.Error()
	}
	return s, nil
}

// DecodedValue returns the typed value of the snapshot.
func (s Snapshot) DecodedValue() (Value, error) {
	return DecodeValue(s.ValueType, s.Value)
}

// Mirror publishes entries and the quota status to Redis so that other
// processes can read the current state. It is write-through only; nothing
// is ever restored from it.
type Mirror struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewMirror creates a mirror on redisClient. A ttl <= 0 uses DefaultMirrorTTL.
func NewMirror(redisClient *redis.Client, ttl time.Duration) *Mirror {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultMirrorTTL
	}
	return &Mirror{
		redis: redisClient,
		ttl:   ttl,
	}
}

// PublishEntry stores the entry of account.
func (m *Mirror) PublishEntry(ctx context.Context, account string, e Entry, threshold int) error {
	s, err := NewSnapshot(account, e, threshold, time.Now())
	if err != nil {
		MirrorErrors.WithLabelValues("publish").Inc()
		return err
	}
	return m.set(ctx, CategoryKey(account, e.Category), s)
}

// PublishQuota stores the quota status of account.
func (m *Mirror) PublishQuota(ctx context.Context, account string, status ratelimit.Status) error {
	return m.set(ctx, QuotaKey(account), status)
}

func (m *Mirror) set(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		MirrorErrors.WithLabelValues("publish").Inc()
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if err := m.redis.Set(ctx, key.String(), data, m.ttl).Err(); err != nil {
		MirrorErrors.WithLabelValues("publish").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// GetEntry reads the published entry of a category.
// Returns ErrCacheMiss if nothing was published or the record expired.
func (m *Mirror) GetEntry(ctx context.Context, account string, category Category) (*Snapshot, error) {
	var s Snapshot
	if err := m.get(ctx, CategoryKey(account, category), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetQuota reads the published quota status.
func (m *Mirror) GetQuota(ctx context.Context, account string) (*ratelimit.Status, error) {
	var s ratelimit.Status
	if err := m.get(ctx, QuotaKey(account), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Entries reads every published category entry of account, skipping
// categories that were never published.
func (m *Mirror) Entries(ctx context.Context, account string) ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(Categories()))
	for _, cat := range Categories() {
		s, err := m.GetEntry(ctx, account, cat)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *Mirror) get(ctx context.Context, key Key, v any) error {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		MirrorErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		MirrorErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// Delete removes a published record.
func (m *Mirror) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		MirrorErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

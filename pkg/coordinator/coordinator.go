// Package coordinator drives the polling cycle of one Discogs account: on
// every tick it refreshes the stale categories through the rate limiter,
// derives the presented values and records the outcome in the cache.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discogs_ticks_total",
		Help: "Total coordinator ticks by outcome",
	}, []string{"account", "result"})

	deferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discogs_category_deferred_total",
		Help: "Category refreshes deferred by the local rate limiter",
	}, []string{"account", "category"})
)

// DefaultRandomPerPage is the page size used to pick a random record.
const DefaultRandomPerPage = 50

// Fetcher performs one Discogs call. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req client.FetchRequest) (*client.Response, error)
}

// Publisher receives every updated entry and the quota status.
// *cache.Mirror implements it.
type Publisher interface {
	PublishEntry(ctx context.Context, account string, e cache.Entry, threshold int) error
	PublishQuota(ctx context.Context, account string, status ratelimit.Status) error
}

// Config holds coordinator configuration.
type Config struct {
	// Account labels metrics, logs and published records.
	Account string

	// Username is resolved through /oauth/identity when empty.
	Username string

	// Enabled turns scheduled updates on. A disabled coordinator ignores
	// Tick but still serves Refresh.
	Enabled bool

	// FailureThreshold defaults to cache.DefaultFailureThreshold.
	FailureThreshold int

	// Intervals per category. Missing categories use cache.DefaultIntervals.
	Intervals map[cache.Category]time.Duration

	// RandomPerPage defaults to DefaultRandomPerPage.
	RandomPerPage int
}

// Report lists what one Tick did.
type Report struct {
	Refreshed []cache.Category
	Deferred  []cache.Category
	Failed    []cache.Category
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher mirrors every update to p.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithRand sets the source used to pick random records.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = r }
}

// Coordinator refreshes the categories of one account.
// Tick and Refresh serialize on one mutex; the accessors never block on a
// running fetch.
type Coordinator struct {
	mu sync.Mutex // held for the duration of Tick and Refresh

	cfg       Config
	fetcher   Fetcher
	limiter   *ratelimit.Limiter
	cache     *cache.Cache
	publisher Publisher
	rng       *rand.Rand
	logger    zerolog.Logger

	stateMu   sync.RWMutex
	username  string
	currency  string
	listing   []json.RawMessage
	listingAt time.Time
}

// New creates a coordinator with an empty cache.
func New(cfg Config, fetcher Fetcher, limiter *ratelimit.Limiter, logger zerolog.Logger, opts ...Option) (*Coordinator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if cfg.RandomPerPage <= 0 {
		cfg.RandomPerPage = DefaultRandomPerPage
	}

	c, err := cache.New(cache.Config{
		Account:          cfg.Account,
		Intervals:        cfg.Intervals,
		FailureThreshold: cfg.FailureThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	co := &Coordinator{
		cfg:      cfg,
		fetcher:  fetcher,
		limiter:  limiter,
		cache:    c,
		username: cfg.Username,
		logger: logger.With().
			Str("component", "coordinator").
			Str("account", cfg.Account).
			Logger(),
	}
	for _, opt := range opts {
		opt(co)
	}
	if co.rng == nil {
		co.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return co, nil
}

// Tick refreshes every stale category at now, in category order.
// A local rate limit denial defers the category (and every later one) to
// the next tick. Upstream failures are recorded on the entries. The only
// error returned is the cancellation of ctx.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) (Report, error) {
	var rep Report

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return rep, nil
	}

	var due []cache.Category
	for _, cat := range cache.Categories() {
		if c.cache.IsStale(cat, now) {
			due = append(due, cat)
		}
	}
	if len(due) == 0 {
		ticksTotal.WithLabelValues(c.cfg.Account, "idle").Inc()
		return rep, nil
	}
	defer c.publishQuota(ctx, now)

	if err := c.ensureUsername(ctx, now); err != nil {
		switch {
		case ctx.Err() != nil:
			return rep, ctx.Err()
		case errors.Is(err, ratelimit.ErrRateLimitExceeded):
			c.deferAll(&rep, due, err)
		default:
			c.logger.Error().Err(err).Msg("Failed to resolve Discogs username")
			for _, cat := range due {
				c.record(ctx, cat, nil, err, now)
				rep.Failed = append(rep.Failed, cat)
			}
		}
		ticksTotal.WithLabelValues(c.cfg.Account, "partial").Inc()
		return rep, nil
	}

	for i, cat := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		err := c.refresh(ctx, cat, now)
		switch {
		case err == nil:
			rep.Refreshed = append(rep.Refreshed, cat)
		case errors.Is(err, ratelimit.ErrRateLimitExceeded):
			c.deferAll(&rep, due[i:], err)
			ticksTotal.WithLabelValues(c.cfg.Account, "partial").Inc()
			return rep, nil
		case ctx.Err() != nil:
			return rep, ctx.Err()
		default:
			rep.Failed = append(rep.Failed, cat)
		}
	}

	result := "ok"
	if len(rep.Failed) > 0 {
		result = "partial"
	}
	ticksTotal.WithLabelValues(c.cfg.Account, result).Inc()
	return rep, nil
}

func (c *Coordinator) deferAll(rep *Report, cats []cache.Category, err error) {
	c.logger.Warn().
		Err(err).
		Int("categories", len(cats)).
		Msg("Rate limit reached - deferring refresh to next tick")
	for _, cat := range cats {
		rep.Deferred = append(rep.Deferred, cat)
		deferredTotal.WithLabelValues(c.cfg.Account, string(cat)).Inc()
	}
}

// Refresh fetches category at now regardless of staleness. It still goes
// through the rate limiter and returns its denial, or the upstream error,
// to the caller. Upstream errors are also recorded on the entry.
func (c *Coordinator) Refresh(ctx context.Context, category cache.Category, now time.Time) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %q", cache.ErrUnknownCategory, category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publishQuota(ctx, now)

	if err := c.ensureUsername(ctx, now); err != nil {
		return fmt.Errorf("resolve username: %w", err)
	}
	return c.refresh(ctx, category, now)
}

// ResolveUsername returns the username, looking it up through the
// limiter when it is not yet known.
func (c *Coordinator) ResolveUsername(ctx context.Context, now time.Time) (string, error) {
	if u := c.Username(); u != "" {
		return u, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publishQuota(ctx, now)

	if err := c.ensureUsername(ctx, now); err != nil {
		return "", fmt.Errorf("resolve username: %w", err)
	}
	return c.Username(), nil
}

// refresh fetches and records one category. Denials and cancellations
// leave the entry untouched.
func (c *Coordinator) refresh(ctx context.Context, cat cache.Category, now time.Time) error {
	value, err := c.fetchCategory(ctx, cat, now)
	if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		return err
	}
	if err != nil && ctx.Err() != nil {
		return err
	}

	c.record(ctx, cat, value, err, now)
	if err != nil {
		c.logger.Warn().
			Str("category", string(cat)).
			Str("kind", string(client.KindOf(err))).
			Err(err).
			Msg("Category refresh failed - keeping last value")
		return err
	}

	c.logger.Debug().Str("category", string(cat)).Msg("Category refreshed")
	return nil
}

func (c *Coordinator) record(ctx context.Context, cat cache.Category, value cache.Value, err error, now time.Time) {
	if uerr := c.cache.Update(cat, value, err, now); uerr != nil {
		c.logger.Error().Err(uerr).Str("category", string(cat)).Msg("Failed to update cache")
		return
	}
	if c.publisher == nil {
		return
	}
	entry, _ := c.cache.Get(cat)
	if perr := c.publisher.PublishEntry(ctx, c.cfg.Account, entry, c.cache.FailureThreshold()); perr != nil {
		c.logger.Warn().Err(perr).Str("category", string(cat)).Msg("Failed to publish entry")
	}
}

func (c *Coordinator) publishQuota(ctx context.Context, now time.Time) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishQuota(ctx, c.cfg.Account, c.limiter.Status(now)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish quota")
	}
}

// call admits one request through the limiter, performs it and reports the
// observed quota back.
func (c *Coordinator) call(ctx context.Context, req client.FetchRequest, now time.Time) (*client.Response, error) {
	if _, err := c.limiter.Acquire(1, now); err != nil {
		return nil, err
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	client.ReportQuota(c.limiter, resp, err, now)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Coordinator) ensureUsername(ctx context.Context, now time.Time) error {
	if c.Username() != "" {
		return nil
	}

	resp, err := c.call(ctx, client.FetchRequest{Resource: client.ResourceIdentity}, now)
	if err != nil {
		return err
	}
	var identity client.Identity
	if err := resp.Decode(&identity); err != nil {
		return err
	}
	if identity.Username == "" {
		return fmt.Errorf("identity: %w", client.ErrUsernameRequired)
	}

	c.stateMu.Lock()
	c.username = identity.Username
	c.stateMu.Unlock()

	c.logger.Info().Str("username", identity.Username).Msg("Resolved Discogs username")
	return nil
}

func (c *Coordinator) fetchCategory(ctx context.Context, cat cache.Category, now time.Time) (cache.Value, error) {
	username := c.Username()

	switch cat {
	case cache.CategoryCollectionCount:
		resp, err := c.call(ctx, client.FetchRequest{Resource: client.ResourceCollectionFolder, Username: username}, now)
		if err != nil {
			return nil, err
		}
		var folder client.Folder
		if err := resp.Decode(&folder); err != nil {
			return nil, err
		}
		c.dropStaleListing(folder.Count)
		return cache.Count{N: folder.Count}, nil

	case cache.CategoryWantlistCount:
		resp, err := c.call(ctx, client.FetchRequest{Resource: client.ResourceWants, Username: username, Page: 1, PerPage: 1}, now)
		if err != nil {
			return nil, err
		}
		page, err := client.DecodeListPage(client.ResourceWants, resp.Body)
		if err != nil {
			return nil, err
		}
		return cache.Count{N: page.Pagination.Items}, nil

	case cache.CategoryCollectionValue:
		resp, err := c.call(ctx, client.FetchRequest{Resource: client.ResourceCollectionValue, Username: username}, now)
		if err != nil {
			return nil, err
		}
		var value client.CollectionValue
		if err := resp.Decode(&value); err != nil {
			return nil, err
		}
		stats := PriceStatsOf(value)
		stats.Currency = value.Currency()
		if stats.Currency != "" {
			c.stateMu.Lock()
			c.currency = stats.Currency
			c.stateMu.Unlock()
		}
		return stats, nil

	case cache.CategoryRandomRecord:
		return c.pickRandom(ctx, username, now)

	default:
		return nil, fmt.Errorf("%w: %q", cache.ErrUnknownCategory, cat)
	}
}

// pickRandom selects a record uniformly from the adopted listing when one
// exists. Otherwise it draws an index over the known collection size and
// fetches the single page holding it; the pick is exact only when the page
// agrees with that size.
func (c *Coordinator) pickRandom(ctx context.Context, username string, now time.Time) (cache.Value, error) {
	c.stateMu.RLock()
	listing := c.listing
	c.stateMu.RUnlock()

	if len(listing) > 0 {
		return recordFromItem(listing[c.rng.IntN(len(listing))], true, len(listing))
	}

	known := -1
	if e, ok := c.cache.Get(cache.CategoryCollectionCount); ok {
		if n, ok := e.Value.(cache.Count); ok {
			known = n.N
		}
	}
	if known == 0 {
		return nil, ErrEmptyCollection
	}

	perPage := c.cfg.RandomPerPage
	page, offset := 1, -1
	if known > 0 {
		idx := c.rng.IntN(known)
		page, offset = idx/perPage+1, idx%perPage
	}

	resp, err := c.call(ctx, client.FetchRequest{
		Resource: client.ResourceCollectionReleases,
		Username: username,
		Page:     page,
		PerPage:  perPage,
	}, now)
	if err != nil {
		return nil, err
	}
	lp, err := client.DecodeListPage(client.ResourceCollectionReleases, resp.Body)
	if err != nil {
		return nil, err
	}
	if len(lp.Items) == 0 {
		return nil, ErrEmptyCollection
	}

	total := lp.Pagination.Items
	if offset >= 0 && offset < len(lp.Items) && total == known {
		return recordFromItem(lp.Items[offset].BasicInformation, true, total)
	}

	// Partial pool: uniform over this page only
	exact := total == len(lp.Items)
	if !exact {
		c.logger.Debug().
			Int("page", page).
			Int("pool", len(lp.Items)).
			Int("collection", total).
			Msg("Random record picked from a partial listing")
	}
	return recordFromItem(lp.Items[c.rng.IntN(len(lp.Items))].BasicInformation, exact, len(lp.Items))
}

// AdoptListing installs a complete collection listing (the items of a
// finished collection export) as the pool for random_record.
func (c *Coordinator) AdoptListing(items []json.RawMessage, now time.Time) {
	c.stateMu.Lock()
	c.listing = append([]json.RawMessage(nil), items...)
	c.listingAt = now
	c.stateMu.Unlock()

	c.logger.Info().Int("items", len(items)).Msg("Adopted collection listing")
}

// dropStaleListing forgets the adopted listing once the collection size changed.
func (c *Coordinator) dropStaleListing(count int) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.listing != nil && len(c.listing) != count {
		c.listing = nil
		c.listingAt = time.Time{}
	}
}

// ListingSize returns the size of the adopted listing, 0 when there is none.
func (c *Coordinator) ListingSize() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return len(c.listing)
}

// Entry returns the current entry of category.
func (c *Coordinator) Entry(category cache.Category) (cache.Entry, bool) {
	return c.cache.Get(category)
}

// Entries returns all entries in category order.
func (c *Coordinator) Entries() []cache.Entry {
	return c.cache.Entries()
}

// FailureThreshold returns the number of failures after which an entry is unavailable.
func (c *Coordinator) FailureThreshold() int {
	return c.cache.FailureThreshold()
}

// Quota returns the limiter status at now.
func (c *Coordinator) Quota(now time.Time) ratelimit.Status {
	return c.limiter.Status(now)
}

// Username returns the configured or resolved username, "" while unknown.
func (c *Coordinator) Username() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.username
}

// Currency returns the currency symbol of the last collection value.
func (c *Coordinator) Currency() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.currency
}

// Account returns the account name.
func (c *Coordinator) Account() string {
	return c.cfg.Account
}

// Options are the settings that can change while the coordinator runs.
type Options struct {
	Enabled   bool
	Intervals map[cache.Category]time.Duration
}

// Options returns the current settings.
func (c *Coordinator) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := Options{Enabled: c.cfg.Enabled, Intervals: make(map[cache.Category]time.Duration)}
	for _, e := range c.cache.Entries() {
		opts.Intervals[e.Category] = e.RefreshInterval
	}
	return opts
}

// SetEnabled turns scheduled updates on or off. It waits for a running
// Tick or Refresh to finish.
func (c *Coordinator) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Enabled != enabled {
		c.logger.Info().Bool("enabled", enabled).Msg("Scheduled updates changed")
	}
	c.cfg.Enabled = enabled
}

// SetIntervals changes the refresh intervals of the given categories.
// Every interval is checked first; on error nothing changes.
func (c *Coordinator) SetIntervals(intervals map[cache.Category]time.Duration) error {
	for cat, d := range intervals {
		if !cat.Valid() {
			return fmt.Errorf("%w: %q", cache.ErrUnknownCategory, cat)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s %s", cache.ErrInvalidInterval, cat, d)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for cat, d := range intervals {
		if err := c.cache.SetInterval(cat, d); err != nil {
			return err
		}
		c.logger.Info().Str("category", string(cat)).Dur("interval", d).Msg("Refresh interval changed")
	}
	return nil
}

package export

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discogs_exports_total",
		Help: "Total export runs by kind and result",
	}, []string{"account", "kind", "result"})

	exportItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discogs_export_items",
		Help: "Items in the last successful export",
	}, []string{"account", "kind"})
)

// Fetcher performs one Discogs call. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req client.FetchRequest) (*client.Response, error)
}

// Identity supplies the username to export. *coordinator.Coordinator
// implements it.
type Identity interface {
	Username() string
}

// Hook runs after every successful job.
type Hook func(job *Job)

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the clock passed to the limiter.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithHook adds a completion hook.
func WithHook(h Hook) Option {
	return func(e *Exporter) { e.hooks = append(e.hooks, h) }
}

// Exporter fetches complete lists page by page. Pages are fetched one
// after another, never in parallel, and every page passes the limiter.
type Exporter struct {
	fetcher  Fetcher
	limiter  *ratelimit.Limiter
	identity Identity
	now      func() time.Time
	hooks    []Hook
	logger   zerolog.Logger

	mu      sync.Mutex
	running map[Kind]bool
}

// NewExporter creates an exporter.
func NewExporter(fetcher Fetcher, limiter *ratelimit.Limiter, identity Identity, logger zerolog.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		fetcher:  fetcher,
		limiter:  limiter,
		identity: identity,
		now:      time.Now,
		running:  make(map[Kind]bool),
		logger: logger.With().
			Str("component", "exporter").
			Str("account", limiter.Config().Account).
			Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run exports the complete list of kind. It is all or nothing: any failure
// discards the pages fetched so far and returns an *Error. The returned job
// is nil only when the action cooldown rejected the run.
func (e *Exporter) Run(ctx context.Context, kind Kind) (*Job, error) {
	account := e.limiter.Config().Account

	if err := e.limiter.AcquireAction(kind.Action(), e.now()); err != nil {
		exportsTotal.WithLabelValues(account, string(kind), string(ReasonRateLimited)).Inc()
		return nil, &Error{Reason: ReasonRateLimited, Kind: kind, Err: err}
	}

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: e.now(),
	}
	logger := e.logger.With().Str("job_id", job.ID).Str("kind", string(kind)).Logger()

	if !e.begin(kind) {
		return e.fail(job, &Error{Reason: ReasonAborted, Kind: kind, Err: ErrAlreadyRunning}, logger)
	}
	defer e.end(kind)

	username := e.identity.Username()
	if username == "" {
		return e.fail(job, &Error{Reason: ReasonAborted, Kind: kind, Err: ErrUsernameUnknown}, logger)
	}

	logger.Info().Str("username", username).Msg("Starting export")

	var items []json.RawMessage
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return e.fail(job, &Error{Reason: ReasonAborted, Kind: kind, Page: page, Err: err}, logger)
		}

		now := e.now()
		if _, err := e.limiter.Acquire(1, now); err != nil {
			return e.fail(job, &Error{Reason: ReasonRateLimited, Kind: kind, Page: page, Err: err}, logger)
		}

		resp, err := e.fetcher.Fetch(ctx, client.FetchRequest{
			Resource: kind.Resource(),
			Username: username,
			Page:     page,
			PerPage:  PerPage,
		})
		client.ReportQuota(e.limiter, resp, err, now)
		if err != nil {
			reason := ReasonUpstreamError
			switch {
			case ctx.Err() != nil:
				reason = ReasonAborted
			case errors.Is(err, client.ErrUpstreamRateLimited):
				reason = ReasonRateLimited
			}
			return e.fail(job, &Error{Reason: reason, Kind: kind, Page: page, Err: err}, logger)
		}

		lp, err := client.DecodeListPage(kind.Resource(), resp.Body)
		if err != nil {
			return e.fail(job, &Error{Reason: ReasonUpstreamError, Kind: kind, Page: page, Err: err}, logger)
		}

		job.PagesFetched++
		if lp.Pagination.Pages > 0 {
			job.TotalPages = lp.Pagination.Pages
		}
		if len(lp.Items) == 0 {
			break
		}
		for _, item := range lp.Items {
			items = append(items, item.BasicInformation)
		}

		if page%10 == 0 {
			logger.Info().
				Int("fetched", job.PagesFetched).
				Int("total", job.TotalPages).
				Msg("Export progress")
		}
		if job.TotalPages > 0 && page >= job.TotalPages {
			break
		}
	}

	job.Items = items
	job.Status = StatusDone
	job.FinishedAt = e.now()

	exportsTotal.WithLabelValues(account, string(kind), "done").Inc()
	exportItems.WithLabelValues(account, string(kind)).Set(float64(len(items)))
	logger.Info().
		Int("pages", job.PagesFetched).
		Int("items", len(items)).
		Dur("duration", job.Duration()).
		Msg("Export complete")

	for _, h := range e.hooks {
		h(job)
	}
	return job, nil
}

func (e *Exporter) fail(job *Job, err *Error, logger zerolog.Logger) (*Job, error) {
	job.Items = nil
	job.Status = StatusFailed
	job.FinishedAt = e.now()
	job.Err = err

	exportsTotal.WithLabelValues(e.limiter.Config().Account, string(job.Kind), string(err.Reason)).Inc()
	logger.Warn().
		Err(err).
		Str("reason", string(err.Reason)).
		Int("pages_fetched", job.PagesFetched).
		Msg("Export failed - discarding partial results")
	return job, err
}

func (e *Exporter) begin(kind Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[kind] {
		return false
	}
	e.running[kind] = true
	return true
}

func (e *Exporter) end(kind Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, kind)
}

// Running reports whether kind is being exported.
func (e *Exporter) Running(kind Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[kind]
}

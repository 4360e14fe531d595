package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discogs_quota_remaining",
		Help: "Calls remaining in the current Discogs rate limit window",
	}, []string{"account"})

	quotaLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discogs_quota_limit",
		Help: "Calls allowed per Discogs rate limit window",
	}, []string{"account"})

	rateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discogs_rate_limit_denials_total",
		Help: "Total number of calls denied locally by reason",
	}, []string{"account", "reason"})
)

// ErrRateLimitExceeded is matched by every local denial.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DenialReason names the guard that rejected a call.
type DenialReason string

const (
	// ReasonFloor means the reported quota would drop below the soft floor.
	ReasonFloor DenialReason = "floor"

	// ReasonBudget means the local call budget is spent.
	ReasonBudget DenialReason = "budget"

	// ReasonCooldown means the action was invoked again inside its cooldown.
	ReasonCooldown DenialReason = "cooldown"
)

// DenialError describes why Acquire or AcquireAction refused a call.
type DenialError struct {
	Reason     DenialReason
	Action     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *DenialError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("rate limit exceeded (%s %s): retry after %s", e.Action, e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (%s): retry after %s", e.Reason, e.RetryAfter)
}

// Is lets errors.Is match ErrRateLimitExceeded.
func (e *DenialError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Config holds limiter configuration.
type Config struct {
	// Account labels metrics and logs.
	Account string

	// SoftFloor is the reserve of reported calls that Acquire never spends.
	SoftFloor int

	// Limit is the assumed quota until Discogs reports one.
	Limit int

	// Window is how long a reported quota stays authoritative.
	Window time.Duration

	// MinCallInterval is the refill interval of the local call budget.
	// Zero disables the local budget.
	MinCallInterval time.Duration

	// CallBurst is the capacity of the local call budget.
	CallBurst int

	// ActionCooldown is the minimum spacing between invocations of the same action.
	ActionCooldown time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		SoftFloor:       DefaultSoftFloor,
		Limit:           DefaultLimit,
		Window:          DefaultWindow,
		MinCallInterval: time.Second,
		CallBurst:       DefaultLimit,
		ActionCooldown:  30 * time.Second,
	}
}

// Validate checks the configuration for values Acquire cannot work with.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be > 0 (got %d)", c.Limit)
	}
	if c.SoftFloor < 0 || c.SoftFloor >= c.Limit {
		return fmt.Errorf("soft_floor must be in [0, %d) (got %d)", c.Limit, c.SoftFloor)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0 (got %s)", c.Window)
	}
	if c.MinCallInterval < 0 {
		return fmt.Errorf("min_call_interval must be >= 0 (got %s)", c.MinCallInterval)
	}
	if c.MinCallInterval > 0 && c.CallBurst <= 0 {
		return fmt.Errorf("call_burst must be > 0 (got %d)", c.CallBurst)
	}
	if c.ActionCooldown < 0 {
		return fmt.Errorf("action_cooldown must be >= 0 (got %s)", c.ActionCooldown)
	}
	return nil
}

// Permit is proof that a call was admitted.
type Permit struct {
	Cost      int
	GrantedAt time.Time
	Remaining int
}

// Limiter gates outbound Discogs calls.
// All methods are safe for concurrent use; the check-and-decrement in
// Acquire happens under one lock.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	quota    QuotaState
	reported bool
	exceeded bool
	budget   *rate.Limiter
	actions  map[string]*rate.Limiter
	logger   zerolog.Logger

	// windowStart is when the tracked quota began to describe the window:
	// the last report, or the first Acquire after the window ran out.
	windowStart time.Time
}

// NewLimiter creates a limiter. Invalid configuration values are replaced by
// defaults; call Config.Validate first to reject them instead.
func NewLimiter(cfg Config, logger zerolog.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.SoftFloor < 0 || cfg.SoftFloor >= cfg.Limit {
		cfg.SoftFloor = def.SoftFloor
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CallBurst <= 0 {
		cfg.CallBurst = def.CallBurst
	}

	l := &Limiter{
		cfg: cfg,
		quota: QuotaState{
			Remaining: cfg.Limit, // Assume a full window until Discogs reports one
			Limit:     cfg.Limit,
		},
		actions: make(map[string]*rate.Limiter),
		logger:  logger.With().Str("component", "ratelimit").Logger(),
	}
	if cfg.MinCallInterval > 0 {
		l.budget = rate.NewLimiter(rate.Every(cfg.MinCallInterval), cfg.CallBurst)
	}

	quotaRemaining.WithLabelValues(cfg.Account).Set(float64(cfg.Limit))
	quotaLimit.WithLabelValues(cfg.Account).Set(float64(cfg.Limit))

	return l
}

// Acquire admits one outbound call of the given cost at now, or fails
// immediately with a *DenialError. It never blocks.
//
// The soft floor applies to the tracked quota, reported or predicted, for
// one Window after it was established. Discogs uses a moving one-minute
// window, so once Window has passed without a Report the quota is assumed
// to be full again and a new predicted window starts at now.
func (l *Limiter) Acquire(cost int, now time.Time) (Permit, error) {
	if cost < 1 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.cfg.Window {
		l.rollWindow(now)
	}

	// Critical: nothing below the floor is spent until the window passes
	if l.quota.BelowFloor(cost, l.cfg.SoftFloor) {
		retryAfter := l.quota.TimeUntilReset(now)
		l.logger.Warn().
			Int("remaining", l.quota.Remaining).
			Int("soft_floor", l.cfg.SoftFloor).
			Dur("retry_after", retryAfter).
			Msg("Discogs quota at soft floor - denying call")
		rateLimitDenials.WithLabelValues(l.cfg.Account, string(ReasonFloor)).Inc()
		return Permit{}, &DenialError{Reason: ReasonFloor, RetryAfter: retryAfter}
	}

	if l.budget != nil && !l.budget.AllowN(now, cost) {
		retryAfter := l.budgetRetryAfter(cost, now)
		l.logger.Warn().
			Int("cost", cost).
			Dur("retry_after", retryAfter).
			Msg("Local call budget spent - denying call")
		rateLimitDenials.WithLabelValues(l.cfg.Account, string(ReasonBudget)).Inc()
		return Permit{}, &DenialError{Reason: ReasonBudget, RetryAfter: retryAfter}
	}

	l.quota.Remaining -= cost
	if l.quota.Remaining < 0 {
		l.quota.Remaining = 0
	}
	quotaRemaining.WithLabelValues(l.cfg.Account).Set(float64(l.quota.Remaining))

	return Permit{Cost: cost, GrantedAt: now, Remaining: l.quota.Remaining}, nil
}

// rollWindow starts a predicted full window at now.
func (l *Limiter) rollWindow(now time.Time) {
	resetAt := now.Add(l.cfg.Window)
	l.quota.Remaining = l.quota.Limit
	l.quota.Used = 0
	l.quota.ResetAt = &resetAt
	l.exceeded = false
	l.windowStart = now
}

// budgetRetryAfter estimates when the local budget holds cost tokens again.
func (l *Limiter) budgetRetryAfter(cost int, now time.Time) time.Duration {
	missing := float64(cost) - l.budget.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(l.cfg.MinCallInterval))
}

// AcquireAction admits one invocation of a named action (for example
// "export:collection") unless the same action ran within ActionCooldown.
// It does not touch the call quota.
func (l *Limiter) AcquireAction(action string, now time.Time) error {
	if l.cfg.ActionCooldown <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	gate, ok := l.actions[action]
	if !ok {
		gate = rate.NewLimiter(rate.Every(l.cfg.ActionCooldown), 1)
		l.actions[action] = gate
	}

	if !gate.AllowN(now, 1) {
		retryAfter := time.Duration((1 - gate.TokensAt(now)) * float64(l.cfg.ActionCooldown))
		l.logger.Warn().
			Str("action", action).
			Dur("cooldown", l.cfg.ActionCooldown).
			Dur("retry_after", retryAfter).
			Msg("Action invoked too frequently")
		rateLimitDenials.WithLabelValues(l.cfg.Account, string(ReasonCooldown)).Inc()
		return &DenialError{Reason: ReasonCooldown, Action: action, RetryAfter: retryAfter}
	}

	return nil
}

// Report replaces the tracked quota with the one Discogs just returned.
// The reported value always wins over the locally predicted one.
func (l *Limiter) Report(q QuotaState) {
	q.normalize()
	if q.ResetAt == nil && !q.LastUpdated.IsZero() {
		resetAt := q.LastUpdated.Add(l.cfg.Window)
		q.ResetAt = &resetAt
	}

	l.mu.Lock()
	l.quota = q
	l.reported = true
	l.exceeded = q.Remaining == 0
	l.windowStart = q.LastUpdated
	status := l.statusLocked(q.LastUpdated)
	l.mu.Unlock()

	quotaRemaining.WithLabelValues(l.cfg.Account).Set(float64(q.Remaining))
	quotaLimit.WithLabelValues(l.cfg.Account).Set(float64(q.Limit))

	switch {
	case q.BelowFloor(1, l.cfg.SoftFloor):
		l.logger.Error().
			Int("remaining", q.Remaining).
			Int("limit", q.Limit).
			Msg("Discogs quota CRITICAL - calls will be denied")
	case !status.Healthy:
		l.logger.Warn().
			Int("remaining", q.Remaining).
			Int("limit", q.Limit).
			Msg("Discogs quota WARNING - running low")
	default:
		l.logger.Debug().
			Int("remaining", q.Remaining).
			Int("limit", q.Limit).
			Int("used", q.Used).
			Msg("Discogs quota state updated")
	}
}

// MarkExhausted records an upstream 429 that carried no usable headers.
func (l *Limiter) MarkExhausted(now time.Time) {
	resetAt := now.Add(l.cfg.Window)

	l.mu.Lock()
	l.quota.Remaining = 0
	l.quota.Used = l.quota.Limit
	l.quota.LastUpdated = now
	l.quota.ResetAt = &resetAt
	l.reported = true
	l.exceeded = true
	l.windowStart = now
	l.mu.Unlock()

	quotaRemaining.WithLabelValues(l.cfg.Account).Set(0)
	l.logger.Error().
		Time("reset_at", resetAt).
		Msg("Discogs rate limit exceeded upstream")
}

// Status returns the current quota view at now.
func (l *Limiter) Status(now time.Time) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(now)
}

func (l *Limiter) statusLocked(now time.Time) Status {
	q := l.quota
	exceeded := l.exceeded && !q.IsStale(now, l.cfg.Window)
	return Status{
		Remaining:   q.Remaining,
		Limit:       q.Limit,
		Used:        q.Used,
		ResetAt:     q.ResetAt,
		LastUpdated: q.LastUpdated,
		Exceeded:    exceeded,
		Healthy:     !exceeded && q.Remaining*100 >= q.Limit*WarningPercent,
		Reported:    l.reported,
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

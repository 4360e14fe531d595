package client

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
)

// ParseQuota extracts the rate limit headers observed at now.
// It reports false when X-Discogs-Ratelimit-Remaining is missing or malformed.
func ParseQuota(headers http.Header, now time.Time) (ratelimit.QuotaState, bool) {
	remaining, err := strconv.Atoi(strings.TrimSpace(headers.Get(HeaderRateLimitRemaining)))
	if err != nil {
		return ratelimit.QuotaState{}, false
	}

	state := ratelimit.QuotaState{
		Remaining:   remaining,
		LastUpdated: now,
	}
	if limit, err := strconv.Atoi(strings.TrimSpace(headers.Get(HeaderRateLimit))); err == nil {
		state.Limit = limit
	}
	if used, err := strconv.Atoi(strings.TrimSpace(headers.Get(HeaderRateLimitUsed))); err == nil {
		state.Used = used
	}
	return state, true
}

// ReportQuota feeds the quota observed on the outcome of a call back into
// limiter, stamped with the caller's now so the limiter judges it on the
// same clock as Acquire. An upstream 429 without headers marks the quota
// exhausted.
func ReportQuota(limiter *ratelimit.Limiter, resp *Response, err error, now time.Time) {
	report := func(q ratelimit.QuotaState) {
		q.LastUpdated = now
		limiter.Report(q)
	}

	if err == nil {
		if resp != nil && resp.Quota != nil {
			report(*resp.Quota)
		}
		return
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return
	}
	switch {
	case apiErr.Quota != nil:
		report(*apiErr.Quota)
	case apiErr.Kind == KindRateLimited:
		limiter.MarkExhausted(now)
	}
}

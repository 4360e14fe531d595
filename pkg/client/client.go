// Package client provides the Discogs HTTP boundary: one authenticated GET
// per call, quota headers parsed on every response and failures classified
// into error kinds. It never retries and never waits for quota; callers
// gate every call through ratelimit.Limiter first.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Discogs client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discogs_requests_total",
		Help: "Total Discogs requests by resource and status",
	}, []string{"account", "resource", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discogs_request_duration_seconds",
		Help:    "Discogs request duration in seconds by resource",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"account", "resource"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discogs_errors_total",
		Help: "Total Discogs errors by kind",
	}, []string{"account", "kind"})
)

// Rate limit headers sent by Discogs on every response.
const (
	HeaderRateLimit          = "X-Discogs-Ratelimit"
	HeaderRateLimitUsed      = "X-Discogs-Ratelimit-Used"
	HeaderRateLimitRemaining = "X-Discogs-Ratelimit-Remaining"
)

// DefaultBaseURL is the public Discogs API.
const DefaultBaseURL = "https://api.discogs.com"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 16 << 20

// Resource names one Discogs endpoint.
type Resource string

const (
	ResourceIdentity           Resource = "identity"
	ResourceCollectionFolder   Resource = "collection_folder"
	ResourceCollectionValue    Resource = "collection_value"
	ResourceCollectionReleases Resource = "collection_releases"
	ResourceWants              Resource = "wants"
)

// path returns the URL path of the resource for username.
func (r Resource) path(username string) (string, error) {
	if r == ResourceIdentity {
		return "/oauth/identity", nil
	}
	if username == "" {
		return "", fmt.Errorf("%s: %w", r, ErrUsernameRequired)
	}
	user := "/users/" + url.PathEscape(username)

	switch r {
	case ResourceCollectionFolder:
		return user + "/collection/folders/0", nil
	case ResourceCollectionValue:
		return user + "/collection/value", nil
	case ResourceCollectionReleases:
		return user + "/collection/folders/0/releases", nil
	case ResourceWants:
		return user + "/wants", nil
	default:
		return "", fmt.Errorf("unknown resource %q", string(r))
	}
}

// FetchRequest describes one outbound call.
type FetchRequest struct {
	Resource Resource
	Username string

	// Page and PerPage are sent only when positive.
	Page    int
	PerPage int
}

// Response is a successful Discogs response.
type Response struct {
	Resource   Resource
	StatusCode int
	Body       []byte

	// Quota is nil when the response carried no rate limit headers.
	Quota *ratelimit.QuotaState

	Duration time.Duration
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.Resource, err)
	}
	return nil
}

// Config holds the client configuration.
type Config struct {
	// Account labels metrics and logs.
	Account string

	// Token is the Discogs personal access token (REQUIRED).
	Token string

	// UserAgent header (REQUIRED by Discogs).
	// Format: "AppName/Version +https://example.com"
	UserAgent string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds a single call. Defaults to 30s.
	Timeout time.Duration

	// HTTPClient overrides the transport (for testing).
	HTTPClient *http.Client

	// Now is the clock used to timestamp quota observations.
	Now func() time.Time
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(token, userAgent string) Config {
	return Config{
		Token:     token,
		UserAgent: userAgent,
		BaseURL:   DefaultBaseURL,
		Timeout:   30 * time.Second,
	}
}

// Client performs Discogs API calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// New creates a new Discogs client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger: logger.With().
			Str("component", "discogs-client").
			Str("account", cfg.Account).
			Logger(),
	}, nil
}

// Fetch performs one GET. Non-2xx statuses and transport failures are
// returned as *APIError; quota headers are parsed in both cases.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (*Response, error) {
	path, err := req.Resource.path(req.Username)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	query := url.Values{}
	if req.Page > 0 {
		query.Set("page", strconv.Itoa(req.Page))
	}
	if req.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(req.PerPage))
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Discogs token="+c.config.Token)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	resource := string(req.Resource)
	c.logger.Debug().
		Str("resource", resource).
		Int("page", req.Page).
		Msg("Executing Discogs request")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	requestDuration.WithLabelValues(c.config.Account, resource).Observe(duration.Seconds())

	if err != nil {
		c.logger.Error().Err(err).Str("resource", resource).Msg("HTTP request failed")
		requestsTotal.WithLabelValues(c.config.Account, resource, "network_error").Inc()
		errorsTotal.WithLabelValues(c.config.Account, string(KindNetwork)).Inc()
		return nil, &APIError{
			Kind:     KindNetwork,
			Resource: req.Resource,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	var quota *ratelimit.QuotaState
	if q, ok := ParseQuota(resp.Header, c.config.Now()); ok {
		quota = &q
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		requestsTotal.WithLabelValues(c.config.Account, resource, "network_error").Inc()
		errorsTotal.WithLabelValues(c.config.Account, string(KindNetwork)).Inc()
		return nil, &APIError{
			Kind:       KindNetwork,
			Resource:   req.Resource,
			StatusCode: resp.StatusCode,
			Message:    "read body",
			Quota:      quota,
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(c.config.Account, resource, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(c.config.Account, string(kind)).Inc()
		c.logger.Warn().
			Str("resource", resource).
			Int("status", resp.StatusCode).
			Str("kind", string(kind)).
			Msg("Discogs request error")
		return nil, &APIError{
			Kind:       kind,
			Resource:   req.Resource,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Status, body),
			Quota:      quota,
		}
	}

	return &Response{
		Resource:   req.Resource,
		StatusCode: resp.StatusCode,
		Body:       body,
		Quota:      quota,
		Duration:   duration,
	}, nil
}

// errorMessage prefers the "message" field Discogs puts in error bodies.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return status
}

// Account returns the account label of the client.
func (c *Client) Account() string {
	return c.config.Account
}

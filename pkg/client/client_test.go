package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig("secret-token", "TestApp/1.0 +https://example.com")
	cfg.BaseURL = server.URL
	cfg.Account = "test"
	cfg.Now = func() time.Time { return testNow }

	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func setQuotaHeaders(w http.ResponseWriter, limit, used, remaining string) {
	w.Header().Set(HeaderRateLimit, limit)
	w.Header().Set(HeaderRateLimitUsed, used)
	w.Header().Set(HeaderRateLimitRemaining, remaining)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultConfig("token", "TestApp/1.0"),
			wantErr: false,
		},
		{
			name:    "missing token",
			cfg:     DefaultConfig("", "TestApp/1.0"),
			wantErr: true,
		},
		{
			name:    "missing user agent",
			cfg:     DefaultConfig("token", ""),
			wantErr: true,
		},
		{
			name:    "empty base url defaulted",
			cfg:     Config{Token: "token", UserAgent: "TestApp/1.0"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, zerolog.Nop())
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.baseURL != DefaultBaseURL {
				t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("token", "TestApp/1.0")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestFetch_HeadersSet(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		setQuotaHeaders(w, "60", "1", "59")
		w.Write([]byte(`{"username": "digger"}`))
	})

	if _, err := c.Fetch(context.Background(), FetchRequest{Resource: ResourceIdentity}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if auth := got.Get("Authorization"); auth != "Discogs token=secret-token" {
		t.Errorf("Authorization = %q, want %q", auth, "Discogs token=secret-token")
	}
	if ua := got.Get("User-Agent"); ua != "TestApp/1.0 +https://example.com" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestFetch_Paths(t *testing.T) {
	tests := []struct {
		name      string
		req       FetchRequest
		wantPath  string
		wantQuery string
	}{
		{
			name:     "identity",
			req:      FetchRequest{Resource: ResourceIdentity},
			wantPath: "/oauth/identity",
		},
		{
			name:     "collection folder",
			req:      FetchRequest{Resource: ResourceCollectionFolder, Username: "digger"},
			wantPath: "/users/digger/collection/folders/0",
		},
		{
			name:     "collection value",
			req:      FetchRequest{Resource: ResourceCollectionValue, Username: "digger"},
			wantPath: "/users/digger/collection/value",
		},
		{
			name:      "collection releases page",
			req:       FetchRequest{Resource: ResourceCollectionReleases, Username: "digger", Page: 3, PerPage: 100},
			wantPath:  "/users/digger/collection/folders/0/releases",
			wantQuery: "page=3&per_page=100",
		},
		{
			name:      "wants",
			req:       FetchRequest{Resource: ResourceWants, Username: "digger", Page: 1, PerPage: 1},
			wantPath:  "/users/digger/wants",
			wantQuery: "page=1&per_page=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotQuery string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotQuery = r.URL.RawQuery
				w.Write([]byte(`{}`))
			})

			if _, err := c.Fetch(context.Background(), tt.req); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tt.wantPath)
			}
			if gotQuery != tt.wantQuery {
				t.Errorf("query = %q, want %q", gotQuery, tt.wantQuery)
			}
		})
	}
}

func TestFetch_UsernameRequired(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.Fetch(context.Background(), FetchRequest{Resource: ResourceWants})
	if !errors.Is(err, ErrUsernameRequired) {
		t.Fatalf("Fetch() error = %v, want ErrUsernameRequired", err)
	}
	if called {
		t.Error("no request should be sent without a username")
	}
}

func TestFetch_QuotaParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		setQuotaHeaders(w, "60", "12", "48")
		w.Write([]byte(`{"count": 3}`))
	})

	resp, err := c.Fetch(context.Background(), FetchRequest{Resource: ResourceCollectionFolder, Username: "digger"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.Quota == nil {
		t.Fatal("Quota should be parsed")
	}
	if resp.Quota.Remaining != 48 || resp.Quota.Limit != 60 || resp.Quota.Used != 12 {
		t.Errorf("Quota = %+v, want remaining=48 limit=60 used=12", *resp.Quota)
	}
	if !resp.Quota.LastUpdated.Equal(testNow) {
		t.Errorf("LastUpdated = %v, want %v", resp.Quota.LastUpdated, testNow)
	}

	var folder Folder
	if err := resp.Decode(&folder); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if folder.Count != 3 {
		t.Errorf("Count = %d, want 3", folder.Count)
	}
}

func TestFetch_ErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind ErrorKind
		wantIs   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: KindUnauthorized, wantIs: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, wantKind: KindUnauthorized, wantIs: ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, wantKind: KindNotFound, wantIs: ErrNotFound},
		{name: "too many requests", status: http.StatusTooManyRequests, wantKind: KindRateLimited, wantIs: ErrUpstreamRateLimited},
		{name: "server error", status: http.StatusInternalServerError, wantKind: KindUnknown, wantIs: ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				setQuotaHeaders(w, "60", "60", "0")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message": "nope"}`))
			})

			_, err := c.Fetch(context.Background(), FetchRequest{Resource: ResourceIdentity})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Fetch() error = %v, want *APIError", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", apiErr.Kind, tt.wantKind)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Message != "nope" {
				t.Errorf("Message = %q, want %q", apiErr.Message, "nope")
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(%v) = false", tt.wantIs)
			}
			if apiErr.Quota == nil || apiErr.Quota.Remaining != 0 {
				t.Errorf("Quota = %+v, want remaining 0 carried on the error", apiErr.Quota)
			}
		})
	}
}

func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := DefaultConfig("token", "TestApp/1.0")
	cfg.BaseURL = url
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Fetch(context.Background(), FetchRequest{Resource: ResourceIdentity})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch() error = %v, want ErrNetwork", err)
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindNetwork)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, FetchRequest{Resource: ResourceIdentity})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestParseQuota(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		wantOK        bool
		wantRemaining int
		wantLimit     int
		wantUsed      int
	}{
		{
			name:          "all headers",
			headers:       map[string]string{HeaderRateLimit: "60", HeaderRateLimitUsed: "5", HeaderRateLimitRemaining: "55"},
			wantOK:        true,
			wantRemaining: 55,
			wantLimit:     60,
			wantUsed:      5,
		},
		{
			name:          "remaining only",
			headers:       map[string]string{HeaderRateLimitRemaining: "10"},
			wantOK:        true,
			wantRemaining: 10,
		},
		{
			name:    "missing remaining",
			headers: map[string]string{HeaderRateLimit: "60"},
			wantOK:  false,
		},
		{
			name:    "malformed remaining",
			headers: map[string]string{HeaderRateLimitRemaining: "lots"},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			state, ok := ParseQuota(h, testNow)
			if ok != tt.wantOK {
				t.Fatalf("ParseQuota() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if state.Remaining != tt.wantRemaining || state.Limit != tt.wantLimit || state.Used != tt.wantUsed {
				t.Errorf("ParseQuota() = %+v", state)
			}
		})
	}
}

func TestReportQuota_StampsCallerTime(t *testing.T) {
	// The client clock runs an hour behind the caller's.
	clientNow := testNow.Add(-time.Hour)
	tick := testNow

	tests := []struct {
		name string
		resp *Response
		err  error
	}{
		{
			name: "success",
			resp: &Response{Quota: &ratelimit.QuotaState{Remaining: 40, Limit: 60, LastUpdated: clientNow}},
		},
		{
			name: "error with headers",
			err:  &APIError{Kind: KindUnknown, StatusCode: 500, Quota: &ratelimit.QuotaState{Remaining: 40, Limit: 60, LastUpdated: clientNow}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ratelimit.DefaultConfig()
			cfg.MinCallInterval = 0
			limiter := ratelimit.NewLimiter(cfg, zerolog.Nop())

			ReportQuota(limiter, tt.resp, tt.err, tick)

			status := limiter.Status(tick)
			if !status.LastUpdated.Equal(tick) {
				t.Errorf("LastUpdated = %v, want %v", status.LastUpdated, tick)
			}
			if status.Remaining != 40 {
				t.Errorf("Remaining = %d, want 40", status.Remaining)
			}
			if tt.resp != nil && !tt.resp.Quota.LastUpdated.Equal(clientNow) {
				t.Error("ReportQuota modified the response quota")
			}
		})
	}
}

func TestReportQuota_RateLimitedWithoutHeaders(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), zerolog.Nop())

	ReportQuota(limiter, nil, &APIError{Kind: KindRateLimited, StatusCode: 429}, testNow)

	if !limiter.Status(testNow).Exceeded {
		t.Error("Exceeded should be true after a 429 without headers")
	}
	if _, err := limiter.Acquire(1, testNow.Add(time.Second)); !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Errorf("Acquire() error = %v, want ErrRateLimitExceeded", err)
	}
}

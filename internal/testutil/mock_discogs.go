// Package testutil provides testing utilities for the Discogs sync packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockDiscogsResponse defines the behavior for a mock Discogs endpoint response.
type MockDiscogsResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockDiscogs is a configurable mock Discogs API server for testing.
// It sends X-Discogs-Ratelimit headers on every response, counting the
// remaining quota down from Limit.
type MockDiscogs struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	Limit     int
	remaining int

	// Tracking
	RequestCount      int
	Paths             []string
	LastRequestHeader http.Header
}

// NewMockDiscogs creates a new mock Discogs server with a full quota of 60.
func NewMockDiscogs() *MockDiscogs {
	mock := &MockDiscogs{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		Limit:     60,
		remaining: 60,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Paths = append(mock.Paths, r.URL.Path)
		mock.LastRequestHeader = r.Header.Clone()
		if mock.remaining > 0 {
			mock.remaining--
		}
		limit, remaining := mock.Limit, mock.remaining
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		w.Header().Set("X-Discogs-Ratelimit", strconv.Itoa(limit))
		w.Header().Set("X-Discogs-Ratelimit-Used", strconv.Itoa(limit-remaining))
		w.Header().Set("X-Discogs-Ratelimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("Content-Type", "application/json")

		if exists {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "The requested resource was not found."}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockDiscogs) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockDiscogs) Close() {
	m.server.Close()
}

// SetRemaining overrides the quota reported on the next response.
// The count is decremented before it is reported.
func (m *MockDiscogs) SetRemaining(remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = remaining
}

// SetHandler sets a custom handler for a specific path.
func (m *MockDiscogs) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockDiscogs) SetResponse(path string, resp MockDiscogsResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetIdentity serves /oauth/identity for username.
func (m *MockDiscogs) SetIdentity(username string) {
	m.SetResponse("/oauth/identity", NewJSONResponse(map[string]any{
		"id":            1,
		"username":      username,
		"resource_url":  "https://api.discogs.com/users/" + username,
		"consumer_name": "discogs-sync",
	}))
}

// SetCollection serves the folder count and the paginated releases of
// username from titles.
func (m *MockDiscogs) SetCollection(username string, titles []string) {
	m.SetResponse(fmt.Sprintf("/users/%s/collection/folders/0", username), NewJSONResponse(map[string]any{
		"id":    0,
		"name":  "All",
		"count": len(titles),
	}))
	m.SetHandler(fmt.Sprintf("/users/%s/collection/folders/0/releases", username), listHandler("releases", titles))
}

// SetWantlist serves the paginated wants of username from titles.
func (m *MockDiscogs) SetWantlist(username string, titles []string) {
	m.SetHandler(fmt.Sprintf("/users/%s/wants", username), listHandler("wants", titles))
}

// SetCollectionValue serves the collection value of username.
func (m *MockDiscogs) SetCollectionValue(username, minimum, median, maximum string) {
	m.SetResponse(fmt.Sprintf("/users/%s/collection/value", username), NewJSONResponse(map[string]any{
		"minimum": minimum,
		"median":  median,
		"maximum": maximum,
	}))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockDiscogs) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPaths returns the requested paths in order.
func (m *MockDiscogs) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Paths...)
}

// listHandler paginates titles the way Discogs does, honoring page and per_page.
func listHandler(key string, titles []string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		if perPage < 1 {
			perPage = 50
		}

		pages := (len(titles) + perPage - 1) / perPage
		start := (page - 1) * perPage
		end := start + perPage
		if start > len(titles) {
			start = len(titles)
		}
		if end > len(titles) {
			end = len(titles)
		}

		items := make([]map[string]any, 0, end-start)
		for i, title := range titles[start:end] {
			items = append(items, map[string]any{
				"id":                start + i + 1,
				"basic_information": ReleaseInfo(start+i+1, title),
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"pagination": map[string]any{
				"page":     page,
				"pages":    pages,
				"per_page": perPage,
				"items":    len(titles),
			},
			key: items,
		})
	}
}

// ReleaseInfo returns a basic_information object for a test release.
func ReleaseInfo(id int, title string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       title,
		"year":        1970 + id%50,
		"cover_image": fmt.Sprintf("https://img.discogs.com/%d.jpg", id),
		"artists":     []map[string]any{{"name": "Artist " + strconv.Itoa(id)}},
		"labels":      []map[string]any{{"name": "Label", "catno": fmt.Sprintf("CAT-%03d", id)}},
		"formats":     []map[string]any{{"name": "Vinyl", "qty": "1", "descriptions": []string{"LP", "Album"}}},
	}
}

// NewJSONResponse creates a 200 OK response with v as JSON body.
func NewJSONResponse(v any) MockDiscogsResponse {
	body, _ := json.Marshal(v)
	return MockDiscogsResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockDiscogsResponse {
	return MockDiscogsResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "You are making requests too quickly."}`,
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockDiscogsResponse {
	return MockDiscogsResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message": "You must authenticate to access this resource."}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockDiscogsResponse {
	return MockDiscogsResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, _ := json.Marshal(v)
	w.WriteHeader(status)
	w.Write(body)
}

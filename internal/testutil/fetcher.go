package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
)

// FetchResult is one scripted answer of a FakeFetcher.
type FetchResult struct {
	Body  []byte
	Quota *ratelimit.QuotaState
	Err   error
}

// JSONResult scripts a successful response with v as JSON body.
func JSONResult(v any) FetchResult {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal scripted body: %v", err))
	}
	return FetchResult{Body: body}
}

// ErrorResult scripts a failed call.
func ErrorResult(err error) FetchResult {
	return FetchResult{Err: err}
}

// WithQuota attaches a reported quota to the result.
func (r FetchResult) WithQuota(q ratelimit.QuotaState) FetchResult {
	r.Quota = &q
	return r
}

// FakeFetcher answers Fetch from per-resource scripts. Each resource plays
// its results in order and repeats the last one. A handler installed with
// Handle takes precedence over the script.
type FakeFetcher struct {
	mu       sync.Mutex
	scripts  map[client.Resource][]FetchResult
	handlers map[client.Resource]func(client.FetchRequest) FetchResult
	calls    []client.FetchRequest
}

// NewFakeFetcher creates an empty fake. Unscripted resources fail with
// client.ErrNotFound.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		scripts:  make(map[client.Resource][]FetchResult),
		handlers: make(map[client.Resource]func(client.FetchRequest) FetchResult),
	}
}

// On appends results to the script of resource.
func (f *FakeFetcher) On(resource client.Resource, results ...FetchResult) *FakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[resource] = append(f.scripts[resource], results...)
	return f
}

// Handle answers every call of resource with fn.
func (f *FakeFetcher) Handle(resource client.Resource, fn func(client.FetchRequest) FetchResult) *FakeFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[resource] = fn
	return f
}

// Fetch implements coordinator.Fetcher and export.Fetcher.
func (f *FakeFetcher) Fetch(ctx context.Context, req client.FetchRequest) (*client.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	var result FetchResult
	if fn, ok := f.handlers[req.Resource]; ok {
		f.mu.Unlock()
		result = fn(req)
	} else {
		script := f.scripts[req.Resource]
		switch len(script) {
		case 0:
			result = ErrorResult(&client.APIError{Kind: client.KindNotFound, Resource: req.Resource, StatusCode: 404, Message: "not scripted"})
		case 1:
			result = script[0]
		default:
			result = script[0]
			f.scripts[req.Resource] = script[1:]
		}
		f.mu.Unlock()
	}

	if result.Err != nil {
		return nil, result.Err
	}
	return &client.Response{
		Resource:   req.Resource,
		StatusCode: 200,
		Body:       result.Body,
		Quota:      result.Quota,
	}, nil
}

// Calls returns the recorded requests in order.
func (f *FakeFetcher) Calls() []client.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.FetchRequest(nil), f.calls...)
}

// CallCount returns how many calls hit resource, or all resources when
// none is given.
func (f *FakeFetcher) CallCount(resources ...client.Resource) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(resources) == 0 {
		return len(f.calls)
	}
	n := 0
	for _, call := range f.calls {
		for _, r := range resources {
			if call.Resource == r {
				n++
			}
		}
	}
	return n
}

// ListPage builds a collection or wants page body of items for the given
// pagination. key is "releases" or "wants".
func ListPage(key string, page, pages, total int, infos ...map[string]any) map[string]any {
	items := make([]map[string]any, 0, len(infos))
	for i, info := range infos {
		items = append(items, map[string]any{"id": i + 1, "basic_information": info})
	}
	return map[string]any{
		"pagination": map[string]any{"page": page, "pages": pages, "per_page": len(infos), "items": total},
		key:          items,
	}
}

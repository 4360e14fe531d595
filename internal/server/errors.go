package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/Sternrassler/discogs-sync/pkg/export"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// StatusOf maps an operation error to its HTTP status: local or upstream
// rate limiting is 429, a running export is 409, Discogs failures are 502.
func StatusOf(err error) int {
	var denial *ratelimit.DenialError
	switch {
	case errors.As(err, &denial), errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, export.ErrInvalidDestination):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, export.ErrUsernameUnknown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	switch export.ReasonOf(err) {
	case export.ReasonRateLimited:
		return http.StatusTooManyRequests
	case export.ReasonUpstreamError:
		return http.StatusBadGateway
	}

	switch client.KindOf(err) {
	case client.KindRateLimited:
		return http.StatusTooManyRequests
	case client.KindUnauthorized, client.KindNotFound, client.KindNetwork:
		return http.StatusBadGateway
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeFailure(w http.ResponseWriter, err error) {
	status := StatusOf(err)

	var denial *ratelimit.DenialError
	if errors.As(err, &denial) && denial.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(denial.RetryAfter.Seconds()))))
	}

	resp := errorResponse{Error: err.Error()}
	if reason := export.ReasonOf(err); reason != "" {
		resp.Reason = string(reason)
	}
	writeJSON(w, status, resp)
}

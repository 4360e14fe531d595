package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/coordinator"
	"github.com/Sternrassler/discogs-sync/pkg/export"
	"github.com/Sternrassler/discogs-sync/pkg/metrics"
	"github.com/Sternrassler/discogs-sync/pkg/sensor"
	"github.com/go-chi/chi/v5"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/accounts", func(r chi.Router) {
		r.Get("/", s.handleAccounts)
		r.Route("/{account}", func(r chi.Router) {
			r.Get("/sensors", s.withAccount(s.handleSensors))
			r.Get("/quota", s.withAccount(s.handleQuota))
			r.Get("/options", s.withAccount(s.handleGetOptions))
			r.Put("/options", s.withAccount(s.handlePutOptions))
			r.Post("/refresh/{category}", s.withAccount(s.handleRefresh))
			r.Post("/export/{kind}", s.withAccount(s.handleExport))
		})
	})
}

type accountHandler func(w http.ResponseWriter, r *http.Request, a Account)

func (s *Server) withAccount(h accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "account")
		a, ok := s.accounts[name]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown account "+strconv.Quote(name))
			return
		}
		h(w, r, a)
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Accounts int    `json:"accounts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Accounts: len(s.order)})
}

type accountSummary struct {
	Name     string         `json:"name"`
	Username string         `json:"username,omitempty"`
	Quota    sensor.Reading `json:"quota"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	out := make([]accountSummary, 0, len(s.order))
	for _, name := range s.order {
		p := s.accounts[name].Poller
		out = append(out, accountSummary{
			Name:     name,
			Username: p.Username(),
			Quota:    sensor.RateLimit(p.Quota(now)),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request, a Account) {
	writeJSON(w, http.StatusOK, sensor.Readings(sensor.Capture(a.Poller, s.now())))
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request, a Account) {
	writeJSON(w, http.StatusOK, sensor.RateLimit(a.Poller.Quota(s.now())))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, a Account) {
	cat, err := cache.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := a.Poller.Refresh(r.Context(), cat, s.now()); err != nil {
		s.logger.Warn().
			Err(err).
			Str("account", a.Name).
			Str("category", string(cat)).
			Msg("Manual refresh failed")
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensor.Readings(sensor.Capture(a.Poller, s.now())))
}

// optionsBody is the wire form of coordinator.Options. Intervals are in
// minutes, as in the configuration file.
type optionsBody struct {
	EnableScheduledUpdates *bool          `json:"enable_scheduled_updates,omitempty"`
	Intervals              map[string]int `json:"intervals,omitempty"`
}

func optionsOf(o coordinator.Options) optionsBody {
	enabled := o.Enabled
	body := optionsBody{EnableScheduledUpdates: &enabled, Intervals: make(map[string]int, len(o.Intervals))}
	for cat, d := range o.Intervals {
		body.Intervals[string(cat)] = int(d / time.Minute)
	}
	return body
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request, a Account) {
	writeJSON(w, http.StatusOK, optionsOf(a.Poller.Options()))
}

// handlePutOptions applies a partial update: omitted fields keep their
// value. Intervals are applied before the enabled flag so a rejected
// interval leaves everything unchanged.
func (s *Server) handlePutOptions(w http.ResponseWriter, r *http.Request, a Account) {
	var body optionsBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid options: "+err.Error())
		return
	}

	if len(body.Intervals) > 0 {
		intervals := make(map[cache.Category]time.Duration, len(body.Intervals))
		for name, minutes := range body.Intervals {
			intervals[cache.Category(name)] = time.Duration(minutes) * time.Minute
		}
		if err := a.Poller.SetIntervals(intervals); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, cache.ErrUnknownCategory) || errors.Is(err, cache.ErrInvalidInterval) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
	}
	if body.EnableScheduledUpdates != nil {
		a.Poller.SetEnabled(*body.EnableScheduledUpdates)
	}

	s.logger.Info().Str("account", a.Name).Msg("Account options updated")
	writeJSON(w, http.StatusOK, optionsOf(a.Poller.Options()))
}

type exportResponse struct {
	*export.Result
	PersistError string `json:"persist_error,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, a Account) {
	if a.Exporter == nil {
		writeError(w, http.StatusNotFound, "exports are not available for this account")
		return
	}
	kind, err := export.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	req := export.Request{Kind: kind, Destination: r.URL.Query().Get("path"), Confined: true}
	if v := r.URL.Query().Get("persist"); v != "" {
		persist, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "persist must be a boolean")
			return
		}
		req.Persist = persist
	}

	res, err := a.Exporter.Invoke(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}

	out := exportResponse{Result: res}
	if res.PersistErr != nil {
		out.PersistError = res.PersistErr.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

const maxTeamNameLen = 100

var errFetcherUnavailable = errors.New("context fetcher not configured")

// httpError carries the status code for handleError
type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func badRequest(format string, args ...interface{}) error {
	return &httpError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// Handler provides HTTP endpoints for budget, cache and context inspection
type Handler struct {
	config Config
}

// Routes returns a router with every endpoint mounted
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Get("/budget/status", h.BudgetStatus)
	r.Get("/budget/stats", h.BudgetStats)
	r.Get("/cache/stats", h.CacheStats)
	r.Get("/context", h.Context)
	return r
}

// Health reports liveness plus budget and cache health labels. It is always 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.config.Budget.Status(r.Context())
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Budget:         status.HealthLabel,
		CallsRemaining: status.CallsRemaining,
		Cache:          h.config.Cache.Stats().HealthLabel,
	})
}

// BudgetStatus returns the current daily budget snapshot
func (h *Handler) BudgetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Budget.Status(r.Context()))
}

// BudgetStats returns the budget snapshot with recent history
func (h *Handler) BudgetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Budget.Stats(r.Context()))
}

// CacheStats returns cache statistics; ?keys=true adds the key list when available
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	resp := CacheStatsResponse{CacheStats: h.config.Cache.Stats()}
	if lister, ok := h.config.Cache.(interface{ Keys() []string }); ok && r.URL.Query().Get("keys") == "true" {
		resp.Keys = lister.Keys()
		sort.Strings(resp.Keys)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Context assembles a prediction context for one match.
// Query: home, away (names, required), home_id, away_id, league, season, date, tier.
// Without ?tier the tier chosen by the budget middleware is used, if any.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	if h.config.Fetcher == nil {
		h.handleError(w, r, &httpError{status: http.StatusServiceUnavailable, err: errFetcherUnavailable})
		return
	}

	req, err := parseMatchRequest(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	pc := h.config.Fetcher.FetchPredictionContext(r.Context(), req)
	h.config.Logger.Info("prediction context served",
		sportsgate.Field{Key: "request_id", Value: pc.RequestID},
		sportsgate.Field{Key: "quality", Value: string(pc.Metadata.DataQuality)},
		sportsgate.Field{Key: "calls_used", Value: pc.Metadata.CallsUsed},
	)
	writeJSON(w, http.StatusOK, pc)
}

func parseMatchRequest(r *http.Request) (sportsgate.MatchRequest, error) {
	q := r.URL.Query()
	req := sportsgate.MatchRequest{
		HomeTeam: strings.TrimSpace(q.Get("home")),
		AwayTeam: strings.TrimSpace(q.Get("away")),
		Tier:     q.Get("tier"),
	}
	// Fall back to the tier the middleware saw requested; the fetcher applies the downgrade
	if d, ok := sportsgate.RequestTierFromContext(r.Context()); ok && req.Tier == "" {
		req.Tier = string(d.Requested)
	}
	if req.HomeTeam == "" || req.AwayTeam == "" {
		return req, badRequest("home and away are required")
	}
	if len(req.HomeTeam) > maxTeamNameLen || len(req.AwayTeam) > maxTeamNameLen {
		return req, badRequest("team name too long")
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"home_id", &req.HomeTeamID},
		{"away_id", &req.AwayTeamID},
		{"league", &req.LeagueID},
		{"season", &req.Season},
	}
	for _, p := range ints {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return req, badRequest("invalid %s %q", p.name, raw)
		}
		*p.dst = v
	}

	if raw := q.Get("date"); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			return req, badRequest("invalid date %q", raw)
		}
		req.MatchDate = &date
	}
	return req, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response already started
		_ = err
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	status := http.StatusInternalServerError
	var he *httpError
	if errors.As(err, &he) {
		status = he.status
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

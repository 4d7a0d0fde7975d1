// Package http provides net/http middleware that resolves the per-request
// prediction tier under daily budget pressure. It never blocks a request.
package http

import (
	"net/http"
	"strconv"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Response and request headers
const (
	HeaderTier            = "X-Prediction-Tier"
	HeaderEffectiveTier   = "X-Prediction-Tier-Effective"
	HeaderDowngraded      = "X-Prediction-Tier-Downgraded"
	HeaderBudgetRemaining = "X-Upstream-Budget-Remaining"
	HeaderBudgetHealth    = "X-Upstream-Budget-Health"
)

// TierExtractor extracts the requested tier name from an HTTP request
// Return empty string to let the default (free) apply
type TierExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Budget is the daily budget tracker (required)
	Budget *sportsgate.BudgetTracker

	// GetTier extracts the requested tier (default: FromHeader(HeaderTier))
	GetTier TierExtractor

	// OnDowngrade is called when a premium request is downgraded.
	// It should only set headers or log; the request always proceeds.
	OnDowngrade func(w http.ResponseWriter, r *http.Request, d sportsgate.RequestTierDecision)
}

// Middleware creates an HTTP middleware that decides the request tier,
// stores it in the request context and reports the budget in response headers.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Budget == nil {
		panic("sportsgate/http: Config.Budget is required")
	}
	if config.GetTier == nil {
		config.GetTier = FromHeader(HeaderTier)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			d := config.Budget.DecideRequestTier(ctx, config.GetTier(r))
			status := config.Budget.Status(ctx)

			h := w.Header()
			h.Set(HeaderEffectiveTier, string(d.Effective))
			h.Set(HeaderBudgetRemaining, strconv.Itoa(status.CallsRemaining))
			h.Set(HeaderBudgetHealth, string(status.HealthLabel))
			if d.Downgraded {
				h.Set(HeaderDowngraded, "true")
				if config.OnDowngrade != nil {
					config.OnDowngrade(w, r, d)
				}
			}

			next.ServeHTTP(w, r.WithContext(sportsgate.WithRequestTier(ctx, d)))
		})
	}
}

// HandlerFunc is Middleware for http.HandlerFunc
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// FromHeader returns a TierExtractor that reads a header
func FromHeader(headerName string) TierExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromQuery returns a TierExtractor that reads a query parameter
func FromQuery(name string) TierExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// Fixed returns a TierExtractor that always answers tier
func Fixed(tier sportsgate.RequestTier) TierExtractor {
	return func(_ *http.Request) string {
		return string(tier)
	}
}

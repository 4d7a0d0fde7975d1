// Package echo provides Echo middleware that resolves the per-request prediction
// tier under daily budget pressure. It never rejects a request.
package echo

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Headers and context keys
const (
	HeaderTier            = "X-Prediction-Tier"
	HeaderEffectiveTier   = "X-Prediction-Tier-Effective"
	HeaderDowngraded      = "X-Prediction-Tier-Downgraded"
	HeaderBudgetRemaining = "X-Upstream-Budget-Remaining"
	HeaderBudgetHealth    = "X-Upstream-Budget-Health"

	// DecisionKey holds the sportsgate.RequestTierDecision in the Echo context
	DecisionKey = "sportsgate:tier"
)

// TierExtractor extracts the requested tier name from an Echo context
type TierExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Budget is the daily budget tracker (required)
	Budget *sportsgate.BudgetTracker

	// GetTier extracts the requested tier (default: FromHeader(HeaderTier))
	GetTier TierExtractor

	// OnDowngrade is called when a premium request is downgraded.
	// It should only set headers; the handler always runs.
	OnDowngrade func(c echo.Context, d sportsgate.RequestTierDecision)
}

// Middleware creates an Echo middleware that decides the request tier,
// stores it under DecisionKey and in the request context, and reports the budget in headers.
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Budget == nil {
		panic("sportsgate/echo: Config.Budget is required")
	}
	if cfg.GetTier == nil {
		cfg.GetTier = FromHeader(HeaderTier)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			d := cfg.Budget.DecideRequestTier(ctx, cfg.GetTier(c))
			status := cfg.Budget.Status(ctx)

			h := c.Response().Header()
			h.Set(HeaderEffectiveTier, string(d.Effective))
			h.Set(HeaderBudgetRemaining, strconv.Itoa(status.CallsRemaining))
			h.Set(HeaderBudgetHealth, string(status.HealthLabel))
			if d.Downgraded {
				h.Set(HeaderDowngraded, "true")
				if cfg.OnDowngrade != nil {
					cfg.OnDowngrade(c, d)
				}
			}

			c.Set(DecisionKey, d)
			c.SetRequest(c.Request().WithContext(sportsgate.WithRequestTier(ctx, d)))
			return next(c)
		}
	}
}

// Decision returns the tier decision stored by Middleware
func Decision(c echo.Context) (sportsgate.RequestTierDecision, bool) {
	d, ok := c.Get(DecisionKey).(sportsgate.RequestTierDecision)
	return d, ok
}

// FromHeader returns a TierExtractor that reads a header
func FromHeader(headerName string) TierExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromQuery returns a TierExtractor that reads a query parameter
func FromQuery(name string) TierExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(name)
	}
}

// FromContext returns a TierExtractor that reads a string set by an earlier middleware
func FromContext(key string) TierExtractor {
	return func(c echo.Context) string {
		if v, ok := c.Get(key).(string); ok {
			return v
		}
		return ""
	}
}

// Package gin provides Gin middleware that resolves the per-request prediction
// tier under daily budget pressure. It never aborts a request.
package gin

import (
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Headers and context keys
const (
	HeaderTier            = "X-Prediction-Tier"
	HeaderEffectiveTier   = "X-Prediction-Tier-Effective"
	HeaderDowngraded      = "X-Prediction-Tier-Downgraded"
	HeaderBudgetRemaining = "X-Upstream-Budget-Remaining"
	HeaderBudgetHealth    = "X-Upstream-Budget-Health"

	// DecisionKey holds the sportsgate.RequestTierDecision in the Gin context
	DecisionKey = "sportsgate:tier"
)

// TierExtractor extracts the requested tier name from a Gin context
type TierExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Budget is the daily budget tracker (required)
	Budget *sportsgate.BudgetTracker

	// GetTier extracts the requested tier (default: FromHeader(HeaderTier))
	GetTier TierExtractor

	// OnDowngrade is called when a premium request is downgraded.
	// It should ONLY set headers (c.Header); the handler chain always continues.
	OnDowngrade func(c *gongin.Context, d sportsgate.RequestTierDecision)
}

// Middleware creates a Gin middleware that decides the request tier,
// stores it under DecisionKey and in the request context, and reports the budget in headers.
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.Budget == nil {
		panic("sportsgate/gin: Config.Budget is required")
	}
	if cfg.GetTier == nil {
		cfg.GetTier = FromHeader(HeaderTier)
	}

	return func(c *gongin.Context) {
		ctx := c.Request.Context()
		d := cfg.Budget.DecideRequestTier(ctx, cfg.GetTier(c))
		status := cfg.Budget.Status(ctx)

		c.Header(HeaderEffectiveTier, string(d.Effective))
		c.Header(HeaderBudgetRemaining, strconv.Itoa(status.CallsRemaining))
		c.Header(HeaderBudgetHealth, string(status.HealthLabel))
		if d.Downgraded {
			c.Header(HeaderDowngraded, "true")
			if cfg.OnDowngrade != nil {
				cfg.OnDowngrade(c, d)
			}
		}

		c.Set(DecisionKey, d)
		c.Request = c.Request.WithContext(sportsgate.WithRequestTier(ctx, d))
		c.Next()
	}
}

// Decision returns the tier decision stored by Middleware
func Decision(c *gongin.Context) (sportsgate.RequestTierDecision, bool) {
	v, ok := c.Get(DecisionKey)
	if !ok {
		return sportsgate.RequestTierDecision{}, false
	}
	d, ok := v.(sportsgate.RequestTierDecision)
	return d, ok
}

// FromHeader returns a TierExtractor that reads a header
func FromHeader(headerName string) TierExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromQuery returns a TierExtractor that reads a query parameter
func FromQuery(name string) TierExtractor {
	return func(c *gongin.Context) string {
		return c.Query(name)
	}
}

// FromContext returns a TierExtractor that reads a string set by an earlier
// handler (e.g. an auth middleware that knows the subscriber's plan)
func FromContext(key string) TierExtractor {
	return func(c *gongin.Context) string {
		return c.GetString(key)
	}
}

// Package fiber provides Fiber middleware that resolves the per-request prediction
// tier under daily budget pressure. It never rejects a request.
package fiber

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Headers and locals keys
const (
	HeaderTier            = "X-Prediction-Tier"
	HeaderEffectiveTier   = "X-Prediction-Tier-Effective"
	HeaderDowngraded      = "X-Prediction-Tier-Downgraded"
	HeaderBudgetRemaining = "X-Upstream-Budget-Remaining"
	HeaderBudgetHealth    = "X-Upstream-Budget-Health"

	// DecisionKey holds the sportsgate.RequestTierDecision in c.Locals
	DecisionKey = "sportsgate:tier"
)

// TierExtractor extracts the requested tier name from a Fiber context
type TierExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Budget is the daily budget tracker (required)
	Budget *sportsgate.BudgetTracker

	// GetTier extracts the requested tier (default: FromHeader(HeaderTier))
	GetTier TierExtractor

	// OnDowngrade is called when a premium request is downgraded.
	// It should only set headers; the handler always runs.
	OnDowngrade func(c *fiber.Ctx, d sportsgate.RequestTierDecision)
}

// Middleware creates a Fiber middleware that decides the request tier,
// stores it in Locals and the user context, and reports the budget in headers.
func Middleware(cfg Config) fiber.Handler {
	if cfg.Budget == nil {
		panic("sportsgate/fiber: Config.Budget is required")
	}
	if cfg.GetTier == nil {
		cfg.GetTier = FromHeader(HeaderTier)
	}

	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		d := cfg.Budget.DecideRequestTier(ctx, cfg.GetTier(c))
		status := cfg.Budget.Status(ctx)

		c.Set(HeaderEffectiveTier, string(d.Effective))
		c.Set(HeaderBudgetRemaining, strconv.Itoa(status.CallsRemaining))
		c.Set(HeaderBudgetHealth, string(status.HealthLabel))
		if d.Downgraded {
			c.Set(HeaderDowngraded, "true")
			if cfg.OnDowngrade != nil {
				cfg.OnDowngrade(c, d)
			}
		}

		c.Locals(DecisionKey, d)
		c.SetUserContext(sportsgate.WithRequestTier(ctx, d))
		return c.Next()
	}
}

// Decision returns the tier decision stored by Middleware
func Decision(c *fiber.Ctx) (sportsgate.RequestTierDecision, bool) {
	d, ok := c.Locals(DecisionKey).(sportsgate.RequestTierDecision)
	return d, ok
}

// FromHeader returns a TierExtractor that reads a header
func FromHeader(headerName string) TierExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromQuery returns a TierExtractor that reads a query parameter
func FromQuery(name string) TierExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(name)
	}
}

// FromLocals returns a TierExtractor that reads a string stored by an earlier handler
func FromLocals(key string) TierExtractor {
	return func(c *fiber.Ctx) string {
		if v, ok := c.Locals(key).(string); ok {
			return v
		}
		return ""
	}
}

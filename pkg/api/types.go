package api

import "github.com/smartsports/sportsgate/pkg/sportsgate"

// CacheStatsResponse is the body of GET /cache/stats
type CacheStatsResponse struct {
	sportsgate.CacheStats
	Keys []string `json:"keys,omitempty"` // only for caches that can list keys
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status         string                 `json:"status"`
	Budget         sportsgate.HealthLevel `json:"budget"`
	CallsRemaining int                    `json:"calls_remaining"`
	Cache          string                 `json:"cache"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

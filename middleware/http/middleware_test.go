package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Test helper to create a free-tier tracker with n calls already used
func setupTestTracker(t *testing.T, used int) *sportsgate.BudgetTracker {
	t.Helper()

	tracker, err := sportsgate.NewBudgetTracker(&sportsgate.BudgetConfig{Tier: "free", Location: time.UTC})
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < used; i++ {
		tracker.RecordCall(ctx, sportsgate.CategoryStandings, false)
	}
	return tracker
}

// captureHandler records the tier decision seen by the wrapped handler
func captureHandler(got *sportsgate.RequestTierDecision, seen *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *seen = sportsgate.RequestTierFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_PremiumWithHealthyBudget(t *testing.T) {
	tracker := setupTestTracker(t, 10)

	var got sportsgate.RequestTierDecision
	var seen bool
	handler := Middleware(Config{Budget: tracker})(captureHandler(&got, &seen))

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	req.Header.Set(HeaderTier, "premium")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !seen {
		t.Fatal("Expected tier decision in request context")
	}
	if got.Effective != sportsgate.RequestTierPremium || got.Downgraded {
		t.Errorf("Unexpected decision: %+v", got)
	}
	if v := rec.Header().Get(HeaderBudgetRemaining); v != "90" {
		t.Errorf("Expected %s 90, got %q", HeaderBudgetRemaining, v)
	}
	if v := rec.Header().Get(HeaderBudgetHealth); v != "healthy" {
		t.Errorf("Expected %s healthy, got %q", HeaderBudgetHealth, v)
	}
	if v := rec.Header().Get(HeaderEffectiveTier); v != "premium" {
		t.Errorf("Expected %s premium, got %q", HeaderEffectiveTier, v)
	}
	if v := rec.Header().Get(HeaderDowngraded); v != "" {
		t.Errorf("Expected no downgrade header, got %q", v)
	}
}

func TestMiddleware_DowngradesUnderPressure(t *testing.T) {
	tracker := setupTestTracker(t, 95)

	var got sportsgate.RequestTierDecision
	var seen bool
	downgrades := 0
	handler := Middleware(Config{
		Budget: tracker,
		OnDowngrade: func(w http.ResponseWriter, _ *http.Request, d sportsgate.RequestTierDecision) {
			downgrades++
			w.Header().Set("X-Custom", string(d.Requested))
		},
	})(captureHandler(&got, &seen))

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	req.Header.Set(HeaderTier, "premium")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Downgrade must not block, got status %d", rec.Code)
	}
	if got.Effective != sportsgate.RequestTierFree || !got.Downgraded {
		t.Errorf("Expected downgrade to free, got %+v", got)
	}
	if downgrades != 1 {
		t.Errorf("Expected OnDowngrade once, got %d", downgrades)
	}
	if v := rec.Header().Get(HeaderDowngraded); v != "true" {
		t.Errorf("Expected downgrade header, got %q", v)
	}
	if v := rec.Header().Get("X-Custom"); v != "premium" {
		t.Errorf("Expected custom header premium, got %q", v)
	}
	if v := rec.Header().Get(HeaderBudgetHealth); v != "critical" {
		t.Errorf("Expected critical health, got %q", v)
	}
}

func TestMiddleware_ExhaustedBudgetStillPasses(t *testing.T) {
	tracker := setupTestTracker(t, 100)

	var got sportsgate.RequestTierDecision
	var seen bool
	handler := Middleware(Config{Budget: tracker})(captureHandler(&got, &seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if v := rec.Header().Get(HeaderBudgetRemaining); v != "0" {
		t.Errorf("Expected 0 remaining, got %q", v)
	}
	if got.Effective != sportsgate.RequestTierFree {
		t.Errorf("Expected free tier by default, got %s", got.Effective)
	}
}

func TestMiddleware_UnknownTierIsFree(t *testing.T) {
	tracker := setupTestTracker(t, 0)

	var got sportsgate.RequestTierDecision
	var seen bool
	handler := Middleware(Config{Budget: tracker, GetTier: FromQuery("tier")})(captureHandler(&got, &seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict?tier=gold", nil))

	if got.Effective != sportsgate.RequestTierFree || got.Recognized {
		t.Errorf("Expected unrecognized tier treated as free, got %+v", got)
	}
}

func TestHandlerFunc(t *testing.T) {
	tracker := setupTestTracker(t, 0)

	called := false
	handler := HandlerFunc(Config{Budget: tracker, GetTier: Fixed(sportsgate.RequestTierPremium)})(
		func(w http.ResponseWriter, r *http.Request) {
			called = true
			d, _ := sportsgate.RequestTierFromContext(r.Context())
			if d.Effective != sportsgate.RequestTierPremium {
				t.Errorf("Expected premium, got %s", d.Effective)
			}
		})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Expected handler to be called")
	}
}

func TestMiddleware_PanicsWithoutBudget(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing budget")
		}
	}()
	Middleware(Config{})
}

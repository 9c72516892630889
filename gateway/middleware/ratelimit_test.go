package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"events": {RatePerSecond: 1, Burst: 1},
	}, nil)

	handler := limiter.Middleware("events")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"events": {RatePerSecond: 1, Burst: 1},
		"stakes": {RatePerSecond: 1, Burst: 1},
	}, nil)

	eventsHandler := limiter.Middleware("events")(okHandler())
	stakesHandler := limiter.Middleware("stakes")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	eventsHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected events request to succeed, got %d", res.Code)
	}

	stakesReq := httptest.NewRequest(http.MethodGet, "/v1/stakes", nil)
	stakesReq.Header.Set("X-API-Key", "tenant-A")
	stakesRes := httptest.NewRecorder()
	stakesHandler.ServeHTTP(stakesRes, stakesReq)
	if stakesRes.Code != http.StatusOK {
		t.Fatalf("expected first stakes request to succeed, got %d", stakesRes.Code)
	}

	stakesRes = httptest.NewRecorder()
	stakesHandler.ServeHTTP(stakesRes, stakesReq)
	if stakesRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second stakes request to hit limit, got %d", stakesRes.Code)
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"archive": {
			RatePerSecond: 5,
			Burst:         5,
			DefaultTokens: 1,
			Tokens: map[string]int{
				"POST /v1/archive/run": 3,
			},
		},
	}, nil)

	handler := limiter.Middleware("archive")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/archive/run", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first archive run to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second archive run to consume burst and be limited, got %d", res.Code)
	}

	// A cheaper route still proceeds because it only costs the default token.
	statusReq := httptest.NewRequest(http.MethodGet, "/v1/archive/status", nil)
	statusRes := httptest.NewRecorder()
	handler.ServeHTTP(statusRes, statusReq)
	if statusRes.Code != http.StatusOK {
		t.Fatalf("expected status route to succeed with default cost, got %d", statusRes.Code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"events": {RatePerSecond: 1, Burst: 1},
	}, nil)

	handler := limiter.Middleware("events")(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	reqA.Header.Set("X-API-Key", "tenant-A")
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusOK {
		t.Fatalf("expected tenant A request to succeed, got %d", resA.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	reqB.Header.Set("X-API-Key", "tenant-B")
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)
	if resB.Code != http.StatusOK {
		t.Fatalf("expected tenant B request to succeed, got %d", resB.Code)
	}
}

func TestRateLimiterIgnoresUnknownRoute(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{}, nil)
	handler := limiter.Middleware("events")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	for i := 0; i < 10; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected unconfigured route to pass, got %d", res.Code)
		}
	}
}

package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/idan5353/video-threat-detection/internal/api"
	mw "github.com/idan5353/video-threat-detection/internal/api/middleware"
	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/registry"
)

// --- stub counter ---

type stubCounter struct {
	count int64
}

func (c *stubCounter) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.count++
	return c.count, nil
}

var _ registry.Counter = (*stubCounter)(nil)

// --- router tests ---

const testToken = "events-token"

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data":{}}`))
}

func newTestRouter(t *testing.T, socketLimit int) (http.Handler, *metrics.Metrics) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	return api.NewRouter(api.Dependencies{
		Auth:            mw.NewAuth(string(hash)),
		EventRateLimit:  mw.NewRateLimit(&stubCounter{}, "events", 60, m),
		SocketRateLimit: mw.NewRateLimit(&stubCounter{}, "ws", socketLimit, m),
		Metrics:         m,
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		VideoEvent:       ok,
		GetRequest:       ok,
		WebsocketHandler: ok,
	}), m
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	// Record one request so the http collectors have a sample.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/health", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `vtd_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/events/video"},
		{"POST", "/api/v1/events/analyze"},
		{"POST", "/api/v1/events/completion"},
		{"POST", "/api/v1/connections/abc"},
		{"DELETE", "/api/v1/connections/abc"},
		{"GET", "/api/v1/requests/abc"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_AuthenticatedRequests(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	req := httptest.NewRequest("POST", "/api/v1/events/video", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))

	// Unwired handlers answer 501.
	req = httptest.NewRequest("POST", "/api/v1/events/completion", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_WebsocketRateLimited(t *testing.T) {
	router, m := newTestRouter(t, 1)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitHits.WithLabelValues("ws")))
}

func TestRouter_WebsocketAbsentInGatewayMode(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(""),
		EventRateLimit: mw.NewRateLimit(&stubCounter{}, "events", 60, nil),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

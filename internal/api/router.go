package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/idan5353/video-threat-detection/internal/api/middleware"
	"github.com/idan5353/video-threat-detection/internal/api/response"
	"github.com/idan5353/video-threat-detection/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth            *mw.Auth
	EventRateLimit  *mw.RateLimit
	SocketRateLimit *mw.RateLimit
	Metrics         *metrics.Metrics

	HealthHandler     http.HandlerFunc
	VideoEvent        http.HandlerFunc
	AnalyzeEvent      http.HandlerFunc
	CompletionEvent   http.HandlerFunc
	ConnectHandler    http.HandlerFunc
	DisconnectHandler http.HandlerFunc
	GetRequest        http.HandlerFunc
	// WebsocketHandler is nil when realtime delivery goes through the
	// managed gateway.
	WebsocketHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(deps.Metrics))
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Event ingress
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.EventRateLimit.Limit)

		r.Post("/api/v1/events/video", orNotImplemented(deps.VideoEvent))
		r.Post("/api/v1/events/analyze", orNotImplemented(deps.AnalyzeEvent))
		r.Post("/api/v1/events/completion", orNotImplemented(deps.CompletionEvent))

		r.Post("/api/v1/connections/{connectionID}", orNotImplemented(deps.ConnectHandler))
		r.Delete("/api/v1/connections/{connectionID}", orNotImplemented(deps.DisconnectHandler))

		r.Get("/api/v1/requests/{contentHash}", orNotImplemented(deps.GetRequest))
	})

	if deps.WebsocketHandler != nil {
		r.With(deps.SocketRateLimit.Limit).Get("/ws", deps.WebsocketHandler)
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

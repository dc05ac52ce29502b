package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/idan5353/video-threat-detection/internal/api/response"
	"github.com/idan5353/video-threat-detection/internal/registry"
)

// ConnectionRegistry records realtime client connections.
type ConnectionRegistry interface {
	Register(ctx context.Context, connectionID string) error
	Deregister(ctx context.Context, connectionID string) error
}

var _ ConnectionRegistry = (registry.Registry)(nil)

func connectionID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "connectionID"))
	return id, id != ""
}

// NewConnectHandler returns an http.HandlerFunc for POST /api/v1/connections/{connectionID}.
func NewConnectHandler(reg ConnectionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := connectionID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "connectionID is required", nil)
			return
		}

		if err := reg.Register(r.Context(), id); err != nil {
			slog.Error("register connection", "connection_id", id, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE",
				"Connection could not be registered", nil)
			return
		}

		slog.Info("connection registered", "connection_id", id)
		response.Created(w, map[string]string{"connection_id": id})
	}
}

// NewDisconnectHandler returns an http.HandlerFunc for DELETE /api/v1/connections/{connectionID}.
// Removing an unknown id succeeds.
func NewDisconnectHandler(reg ConnectionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := connectionID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "connectionID is required", nil)
			return
		}

		if err := reg.Deregister(r.Context(), id); err != nil {
			slog.Error("deregister connection", "connection_id", id, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE",
				"Connection could not be removed", nil)
			return
		}

		slog.Info("connection removed", "connection_id", id)
		response.NoContent(w)
	}
}

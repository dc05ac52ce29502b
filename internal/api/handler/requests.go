package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idan5353/video-threat-detection/internal/api/response"
	"github.com/idan5353/video-threat-detection/internal/store"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// RequestReader looks up dispatched job groups.
type RequestReader interface {
	GetAnalysisRequestByHash(ctx context.Context, contentHash string) (*models.AnalysisRequest, error)
}

var _ RequestReader = (store.Store)(nil)

// NewGetRequestHandler returns an http.HandlerFunc for GET /api/v1/requests/{contentHash}.
func NewGetRequestHandler(rr RequestReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "contentHash")
		if hash == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "contentHash is required", nil)
			return
		}

		req, err := rr.GetAnalysisRequestByHash(r.Context(), hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis request not found", nil)
				return
			}
			slog.Error("get analysis request", "content_hash", hash, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, req)
	}
}

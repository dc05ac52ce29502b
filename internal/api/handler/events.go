package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/idan5353/video-threat-detection/internal/api/response"
	"github.com/idan5353/video-threat-detection/internal/pipeline"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// Dispatcher starts the analysis jobs for an uploaded video.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.VideoEvent) (*models.AnalysisRequest, error)
}

// Analyzer runs the metadata-only heuristic for an uploaded video.
type Analyzer interface {
	Analyze(ctx context.Context, ev models.VideoEvent) (models.AnalysisResult, error)
}

// BatchHandler processes a batch of queued completion notifications.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch models.QueueBatch) pipeline.BatchResponse
}

var (
	_ Dispatcher   = (*pipeline.Dispatcher)(nil)
	_ Analyzer     = (*pipeline.Analyzer)(nil)
	_ BatchHandler = (*pipeline.CompletionRouter)(nil)
)

// NewVideoEventHandler returns an http.HandlerFunc for POST /api/v1/events/video.
// A failed start call answers 502 with retryable set so the event source
// redelivers; redelivery resumes the same job group. Error details list the
// requests already accepted for earlier records of the same event.
func NewVideoEventHandler(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}

		events, err := pipeline.ParseVideoEvents(body)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil)
			return
		}

		requests := make([]*models.AnalysisRequest, 0, len(events))
		for _, ev := range events {
			req, err := d.Dispatch(r.Context(), ev)
			if err != nil {
				writeDispatchError(w, ev, requests, err)
				return
			}
			requests = append(requests, req)
		}

		response.Accepted(w, requests)
	}
}

func writeDispatchError(w http.ResponseWriter, ev models.VideoEvent, accepted []*models.AnalysisRequest, err error) {
	var dispatchErr *pipeline.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		response.Error(w, http.StatusBadGateway, "DISPATCH_FAILED",
			"Analysis job could not be started", map[string]any{
				"video":     dispatchErr.Video,
				"kind":      dispatchErr.Kind,
				"api":       dispatchErr.Kind.API(),
				"retryable": dispatchErr.Retryable(),
				"accepted":  accepted,
			})
	case errors.Is(err, pipeline.ErrMalformedNotification):
		response.Error(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), map[string]any{
			"accepted": accepted,
		})
	case errors.Is(err, pipeline.ErrPersistence):
		response.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
			"Analysis requests could not be looked up", map[string]any{
				"video":     ev.Key,
				"retryable": true,
				"accepted":  accepted,
			})
	default:
		slog.Error("dispatch failed", "bucket", ev.Bucket, "key", ev.Key, "accepted", len(accepted), "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// NewAnalyzeEventHandler returns an http.HandlerFunc for POST /api/v1/events/analyze.
func NewAnalyzeEventHandler(a Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}

		events, err := pipeline.ParseVideoEvents(body)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil)
			return
		}

		results := make([]models.AnalysisResult, 0, len(events))
		for _, ev := range events {
			result, err := a.Analyze(r.Context(), ev)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil)
				return
			}
			results = append(results, result)
		}

		response.JSON(w, results)
	}
}

// NewCompletionEventHandler returns an http.HandlerFunc for
// POST /api/v1/events/completion. Per-record failures are reported in
// batchItemFailures; the request itself only fails when the batch is unreadable.
func NewCompletionEventHandler(b BatchHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}

		var batch models.QueueBatch
		if err := json.Unmarshal(body, &batch); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_EVENT", "Invalid queue batch", nil)
			return
		}

		response.JSON(w, b.HandleBatch(r.Context(), batch))
	}
}

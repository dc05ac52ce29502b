package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/rekognition"
	"github.com/idan5353/video-threat-detection/internal/store"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// RequestStore persists dispatched job groups.
type RequestStore interface {
	UpsertAnalysisRequest(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisRequest, error)
	GetAnalysisRequestByHash(ctx context.Context, contentHash string) (*models.AnalysisRequest, error)
	CreateJob(ctx context.Context, job *models.Job) error
}

// Dispatcher starts the correlated job group for a new video.
type Dispatcher struct {
	backend       rekognition.Backend
	requests      RequestStore
	announcer     Announcer
	minConfidence float64
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewDispatcher creates a new Dispatcher. A nil m discards metrics.
func NewDispatcher(backend rekognition.Backend, requests RequestStore, announcer Announcer, minConfidence float64, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.Discard()
	}
	return &Dispatcher{
		backend:       backend,
		requests:      requests,
		announcer:     announcer,
		minConfidence: minConfidence,
		metrics:       m,
		now:           time.Now,
	}
}

// Dispatch starts one job per kind, in DispatchOrder, for the video. The
// first failing start aborts the rest, announces the failure and returns a
// *DispatchError. A video whose jobs were all started before is returned as
// stored without new start calls; a partially dispatched one resumes with its
// existing correlation id and only starts the missing kinds.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.VideoEvent) (*models.AnalysisRequest, error) {
	if ev.Bucket == "" || ev.Key == "" {
		return nil, fmt.Errorf("%w: bucket and key are required", ErrMalformedNotification)
	}

	hash := rekognition.ContentHash(ev.Bucket, ev.Key, ev.ETag)
	req, err := d.lookup(ctx, ev, hash)
	if err != nil {
		return nil, err
	}
	if req.Complete() {
		slog.Info("video already dispatched", "video", ev.Key, "correlation_id", req.CorrelationID)
		return req, nil
	}

	var started []models.JobKind
	for _, kind := range models.DispatchOrder {
		if req.JobID(kind) != "" {
			continue
		}

		jobID, err := d.backend.StartJob(ctx, kind, rekognition.StartRequest{
			Bucket:        ev.Bucket,
			Key:           ev.Key,
			JobTag:        models.JobTag(kind, req.CorrelationID),
			RequestToken:  rekognition.RequestToken(kind, hash),
			MinConfidence: d.minConfidence,
		})
		if err != nil {
			d.metrics.DispatchFailures.WithLabelValues(string(kind)).Inc()
			slog.Error("job start failed", "video", ev.Key, "kind", kind, "error", err)

			// Keep what did start so a retry reuses the correlation id.
			if len(started) > 0 {
				d.persist(ctx, req, started)
			}
			if aerr := d.announcer.Failed(ctx, ev.Key, err); aerr != nil {
				slog.Error("announce dispatch failure", "video", ev.Key, "error", aerr)
			}
			return nil, &DispatchError{Kind: kind, Video: ev.Key, Err: err}
		}

		req.SetJobID(kind, jobID)
		started = append(started, kind)
		d.metrics.JobsDispatched.WithLabelValues(string(kind)).Inc()
		slog.Info("job started", "video", ev.Key, "kind", kind, "job_id", jobID)
	}

	d.persist(ctx, req, started)

	info := models.JobGroupInfo{
		VideoKey:        ev.Key,
		Bucket:          ev.Bucket,
		LabelJobID:      req.LabelJobID,
		ModerationJobID: req.ModerationJobID,
		PersonJobID:     req.PersonJobID,
		JobPrefix:       req.CorrelationID.String(),
	}
	if err := d.announcer.Started(ctx, info); err != nil {
		slog.Error("announce dispatch", "video", ev.Key, "error", err)
	}
	return req, nil
}

func (d *Dispatcher) lookup(ctx context.Context, ev models.VideoEvent, hash string) (*models.AnalysisRequest, error) {
	existing, err := d.requests.GetAnalysisRequestByHash(ctx, hash)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		return &models.AnalysisRequest{
			CorrelationID: uuid.New(),
			ContentHash:   hash,
			Bucket:        ev.Bucket,
			Key:           ev.Key,
			CreatedAt:     d.now().UTC(),
		}, nil
	default:
		// Without the stored group a retry could start a second correlation id.
		return nil, fmt.Errorf("%w: looking up analysis request: %w", ErrPersistence, err)
	}
}

// persist records the group and its newly started jobs. Failures are logged:
// the jobs are already running and their notifications carry everything the
// router needs.
func (d *Dispatcher) persist(ctx context.Context, req *models.AnalysisRequest, started []models.JobKind) {
	stored, err := d.requests.UpsertAnalysisRequest(ctx, req)
	if err != nil {
		slog.Error("persist analysis request", "correlation_id", req.CorrelationID, "error",
			fmt.Errorf("%w: %w", ErrPersistence, err))
		return
	}

	now := d.now().UTC()
	for _, kind := range started {
		job := &models.Job{
			JobID:         req.JobID(kind),
			Kind:          kind,
			Status:        models.JobStatusPending,
			CorrelationID: stored.CorrelationID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := d.requests.CreateJob(ctx, job); err != nil {
			slog.Error("persist job", "job_id", job.JobID, "kind", kind, "error",
				fmt.Errorf("%w: %w", ErrPersistence, err))
		}
	}
}

var _ RequestStore = (store.Store)(nil)

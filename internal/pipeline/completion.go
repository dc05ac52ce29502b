package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/idan5353/video-threat-detection/internal/analysis"
	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/realtime"
	"github.com/idan5353/video-threat-detection/internal/report"
	"github.com/idan5353/video-threat-detection/internal/store"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// BatchItemFailure names a record the queue should redeliver.
type BatchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// BatchResponse is the partial-batch result of HandleBatch.
type BatchResponse struct {
	BatchItemFailures []BatchItemFailure `json:"batchItemFailures"`
}

// Outcome describes how one notification was handled.
type Outcome struct {
	JobID     string                `json:"job_id"`
	API       string                `json:"api"`
	Status    string                `json:"status"`
	Findings  int                   `json:"findings"`
	ReportKey string                `json:"report_key,omitempty"`
	Fanout    realtime.FanoutResult `json:"fanout"`
}

// CompletionDeps holds the collaborators of a CompletionRouter. Jobs and
// Metrics may be nil.
type CompletionDeps struct {
	Fetcher       DetectionFetcher
	Classifier    analysis.Classifier
	Jobs          JobStatusUpdater
	Reports       report.Store
	Alerts        AlertPublisher
	ThreatMetrics ThreatMetrics
	Fanout        Broadcaster
	Metrics       *metrics.Metrics
}

// CompletionRouter turns job-completion notifications into reports, alerts
// and realtime updates.
type CompletionRouter struct {
	deps CompletionDeps
	now  func() time.Time
}

// NewCompletionRouter creates a new CompletionRouter.
func NewCompletionRouter(deps CompletionDeps) *CompletionRouter {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}
	return &CompletionRouter{deps: deps, now: time.Now}
}

// DecodeNotification parses a queued record body. The body is either the raw
// notification or a topic envelope whose Message holds it.
func DecodeNotification(body string) (models.CompletionNotification, error) {
	var n models.CompletionNotification

	raw := []byte(body)
	var env models.NotificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return n, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}
	if env.Message != "" {
		raw = []byte(env.Message)
	}

	if err := json.Unmarshal(raw, &n); err != nil {
		return n, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}
	if err := validateNotification(n); err != nil {
		return n, err
	}
	return n, nil
}

func validateNotification(n models.CompletionNotification) error {
	if n.JobID == "" {
		return fmt.Errorf("%w: missing JobId", ErrMalformedNotification)
	}
	if _, err := models.ParseAPI(n.API); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}
	if !models.IsTerminalStatus(n.Status) {
		return fmt.Errorf("%w: unexpected status %q", ErrMalformedNotification, n.Status)
	}
	return nil
}

// HandleBatch handles every record independently. Records that cannot be
// decoded or handled are reported back for redelivery; the rest of the batch
// is unaffected.
func (r *CompletionRouter) HandleBatch(ctx context.Context, batch models.QueueBatch) BatchResponse {
	resp := BatchResponse{BatchItemFailures: []BatchItemFailure{}}
	for _, rec := range batch.Records {
		if err := r.handleRecord(ctx, rec); err != nil {
			slog.Error("completion record failed", "message_id", rec.MessageID, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, BatchItemFailure{ItemIdentifier: rec.MessageID})
		}
	}
	return resp
}

func (r *CompletionRouter) handleRecord(ctx context.Context, rec models.QueueRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic handling record: %v", p)
		}
	}()

	n, err := DecodeNotification(rec.Body)
	if err != nil {
		r.deps.Metrics.MalformedRecords.Inc()
		return err
	}
	_, err = r.Handle(ctx, n)
	return err
}

// Handle processes one notification. Only an invalid notification is an
// error; downstream failures are logged and degrade the outcome.
func (r *CompletionRouter) Handle(ctx context.Context, n models.CompletionNotification) (Outcome, error) {
	if err := validateNotification(n); err != nil {
		return Outcome{}, err
	}
	kind, _ := models.ParseAPI(n.API)
	out := Outcome{JobID: n.JobID, API: n.API, Status: n.Status}

	r.deps.Metrics.CompletionsProcessed.WithLabelValues(n.API, n.Status).Inc()
	r.recordStatus(ctx, n)

	if n.Status == models.JobStatusFailed {
		slog.Warn("analysis job failed", "job_id", n.JobID, "api", n.API)
		if err := r.deps.Alerts.PublishJobFailure(ctx, n.JobID, n.API); err != nil {
			slog.Error("publish job failure", "job_id", n.JobID, "error", fmt.Errorf("%w: %w", ErrAlertPublish, err))
		}
		return out, nil
	}

	detections, err := r.deps.Fetcher.FetchDetections(ctx, kind, n.JobID)
	if err != nil {
		slog.Error("fetching detections, treating job as clean",
			"job_id", n.JobID, "api", n.API, "error", fmt.Errorf("%w: %w", ErrDetectionFetch, err))
		detections = models.Detections{Kind: kind}
	}

	findings := r.deps.Classifier.Classify(detections)
	out.Findings = len(findings)
	for _, f := range findings {
		r.deps.Metrics.FindingsTotal.WithLabelValues(n.API, string(f.Severity)).Inc()
	}
	slog.Info("job classified", "job_id", n.JobID, "api", n.API,
		"detections", detections.Len(), "findings", len(findings))

	createdAt := r.reportTime(n)
	if len(findings) > 0 {
		out.ReportKey = r.persistAndAlert(ctx, n, kind, findings, createdAt)
	}

	out.Fanout = r.broadcast(ctx, n, findings, detectedObjects(detections), createdAt)
	return out, nil
}

func (r *CompletionRouter) recordStatus(ctx context.Context, n models.CompletionNotification) {
	if r.deps.Jobs == nil {
		return
	}
	err := r.deps.Jobs.UpdateJobStatus(ctx, n.JobID, n.Status)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		slog.Debug("completion for unknown job", "job_id", n.JobID)
	case errors.Is(err, store.ErrInvalidTransition):
		slog.Warn("ignoring status change", "job_id", n.JobID, "status", n.Status, "error", err)
	default:
		slog.Error("recording job status", "job_id", n.JobID, "error", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
}

// persistAndAlert saves the report, publishes the alert and emits the count
// metric. Each step is best-effort.
func (r *CompletionRouter) persistAndAlert(ctx context.Context, n models.CompletionNotification, kind models.JobKind, findings []models.ThreatFinding, createdAt time.Time) string {
	rep := models.NewThreatReport(n.JobID, kind, findings, createdAt)

	key, err := r.deps.Reports.Save(ctx, rep)
	if err != nil {
		slog.Error("saving threat report", "job_id", n.JobID, "error", fmt.Errorf("%w: %w", ErrPersistence, err))
	} else {
		slog.Info("threat report saved", "job_id", n.JobID, "key", key)
	}

	if err := r.deps.Alerts.PublishThreat(ctx, rep, n.Video); err != nil {
		slog.Error("publishing threat alert", "job_id", n.JobID, "error", fmt.Errorf("%w: %w", ErrAlertPublish, err))
	}
	if r.deps.ThreatMetrics != nil {
		if err := r.deps.ThreatMetrics.ThreatsDetected(ctx, n.API, len(findings)); err != nil {
			slog.Warn("emitting threat metric", "job_id", n.JobID, "error", err)
		}
	}
	return key
}

func (r *CompletionRouter) broadcast(ctx context.Context, n models.CompletionNotification, findings []models.ThreatFinding, objects []models.DetectedObject, at time.Time) realtime.FanoutResult {
	if r.deps.Fanout == nil {
		return realtime.FanoutResult{}
	}
	result := models.AnalysisResult{
		Action:           models.ActionAnalysisComplete,
		VideoKey:         n.Video.S3ObjectName,
		JobID:            n.JobID,
		API:              n.API,
		AnalysisComplete: true,
		ThreatsDetected:  len(findings) > 0,
		ThreatCount:      len(findings),
		Threats:          findings,
		DetectedObjects:  objects,
		Summary:          analysis.Summarize(findings, objects),
		Timestamp:        at.UTC().Format(time.RFC3339),
		AnalysisMethod:   models.AnalysisMethodRekognition,
	}
	return fanOut(ctx, r.deps.Fanout, result)
}

// reportTime dates the report from the notification so a redelivery on a
// later day still writes the same key.
func (r *CompletionRouter) reportTime(n models.CompletionNotification) time.Time {
	if n.Timestamp > 0 {
		return time.UnixMilli(n.Timestamp).UTC()
	}
	return r.now().UTC()
}

// detectedObjects lists each distinct label seen in the job, at its highest
// confidence, in first-seen order.
func detectedObjects(d models.Detections) []models.DetectedObject {
	objects := []models.DetectedObject{}
	index := make(map[string]int)
	for _, l := range d.Labels {
		if i, ok := index[l.Name]; ok {
			if l.Confidence > objects[i].Confidence {
				objects[i].Confidence = l.Confidence
			}
			continue
		}
		index[l.Name] = len(objects)
		objects = append(objects, models.DetectedObject{Name: l.Name, Confidence: l.Confidence})
	}
	return objects
}

// fanOut encodes result and broadcasts it. Failures are logged.
func fanOut(ctx context.Context, b Broadcaster, result models.AnalysisResult) realtime.FanoutResult {
	payload, err := result.Marshal()
	if err != nil {
		slog.Error("encoding realtime payload", "video", result.VideoKey, "error", err)
		return realtime.FanoutResult{}
	}
	res, err := b.Broadcast(ctx, payload)
	if err != nil {
		slog.Error("realtime fanout", "video", result.VideoKey, "error", fmt.Errorf("%w: %w", ErrDelivery, err))
		return res
	}
	slog.Info("realtime fanout", "video", result.VideoKey,
		"total", res.Total, "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}

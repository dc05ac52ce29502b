// Package pipeline wires the analysis backend, the classifier and the
// downstream sinks into the three event handlers: dispatch, completion
// routing and heuristic analysis.
package pipeline

import (
	"context"

	"github.com/idan5353/video-threat-detection/internal/realtime"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// Announcer publishes processing started/failed messages.
type Announcer interface {
	Started(ctx context.Context, jobs models.JobGroupInfo) error
	Failed(ctx context.Context, videoKey string, cause error) error
}

// AlertPublisher publishes threat and job-failure alerts.
type AlertPublisher interface {
	PublishThreat(ctx context.Context, report models.ThreatReport, video models.VideoInfo) error
	PublishJobFailure(ctx context.Context, jobID, api string) error
}

// ThreatMetrics receives one count per classified job.
type ThreatMetrics interface {
	ThreatsDetected(ctx context.Context, api string, count int) error
}

// DetectionFetcher reads the detections of a finished job.
type DetectionFetcher interface {
	FetchDetections(ctx context.Context, kind models.JobKind, jobID string) (models.Detections, error)
}

// JobStatusUpdater records terminal job statuses.
type JobStatusUpdater interface {
	UpdateJobStatus(ctx context.Context, jobID string, status string) error
}

// Broadcaster pushes a payload to every live connection.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) (realtime.FanoutResult, error)
}

// SizeReader returns the byte size of a stored object.
type SizeReader interface {
	Size(ctx context.Context, bucket, key string) (int64, error)
}

var _ Broadcaster = (*realtime.Fanout)(nil)

package store

import (
	"context"
	"errors"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface for dispatched job groups.
type Store interface {
	Ping(ctx context.Context) error

	// UpsertAnalysisRequest inserts req or, when its content hash is already
	// known, merges in any job ids it carries. The stored row is returned.
	UpsertAnalysisRequest(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisRequest, error)
	GetAnalysisRequestByHash(ctx context.Context, contentHash string) (*models.AnalysisRequest, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string) error
}

// validTransitions lists the statuses a job may move to. Terminal statuses
// have no outgoing transitions.
var validTransitions = map[string][]string{
	models.JobStatusPending: {models.JobStatusSucceeded, models.JobStatusFailed},
}

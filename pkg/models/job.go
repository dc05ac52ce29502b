package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind is one of the three analysis types run per video.
type JobKind string

const (
	JobKindLabelDetection    JobKind = "LABEL_DETECTION"
	JobKindContentModeration JobKind = "CONTENT_MODERATION"
	JobKindPersonTracking    JobKind = "PERSON_TRACKING"
)

// DispatchOrder is the fixed order in which jobs are started for a video.
var DispatchOrder = []JobKind{
	JobKindLabelDetection,
	JobKindContentModeration,
	JobKindPersonTracking,
}

var kindAPIs = map[JobKind]string{
	JobKindLabelDetection:    "StartLabelDetection",
	JobKindContentModeration: "StartContentModeration",
	JobKindPersonTracking:    "StartPersonTracking",
}

var kindTags = map[JobKind]string{
	JobKindLabelDetection:    "label-detection",
	JobKindContentModeration: "content-moderation",
	JobKindPersonTracking:    "person-tracking",
}

// API returns the backend operation name that started jobs of this kind.
// Completion notifications identify their job kind by this name.
func (k JobKind) API() string { return kindAPIs[k] }

// Tag returns the human-readable job tag prefix for this kind.
func (k JobKind) Tag() string { return kindTags[k] }

// SupportsMinConfidence reports whether start calls for this kind accept a
// minimum-confidence parameter.
func (k JobKind) SupportsMinConfidence() bool {
	return k == JobKindLabelDetection || k == JobKindContentModeration
}

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	_, ok := kindAPIs[k]
	return ok
}

// ParseAPI maps a backend operation name back to its job kind.
func ParseAPI(api string) (JobKind, error) {
	for kind, name := range kindAPIs {
		if name == api {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown job api %q", api)
}

// JobTag builds the tag attached to a started job: "<kind-tag>-<correlation-id>".
func JobTag(kind JobKind, correlationID uuid.UUID) string {
	return kind.Tag() + "-" + correlationID.String()
}

const (
	JobStatusPending   = "PENDING"
	JobStatusSucceeded = "SUCCEEDED"
	JobStatusFailed    = "FAILED"
)

// IsTerminalStatus reports whether status is SUCCEEDED or FAILED.
func IsTerminalStatus(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}

// Job is one asynchronous analysis task. The job id is assigned by the
// analysis backend; CorrelationID points back at its AnalysisRequest group.
type Job struct {
	JobID         string     `db:"job_id"         json:"job_id"`
	Kind          JobKind    `db:"kind"           json:"kind"`
	Status        string     `db:"status"         json:"status"`
	CorrelationID uuid.UUID  `db:"correlation_id" json:"correlation_id"`
	CompletedAt   *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// AnalysisRequest groups the jobs dispatched for one uploaded video.
// It is keyed by ContentHash so a redelivered upload event maps back to the
// same group.
type AnalysisRequest struct {
	CorrelationID   uuid.UUID `db:"correlation_id"    json:"correlation_id"`
	ContentHash     string    `db:"content_hash"      json:"content_hash"`
	Bucket          string    `db:"bucket"            json:"bucket"`
	Key             string    `db:"video_key"         json:"video_key"`
	LabelJobID      string    `db:"label_job_id"      json:"label_job_id"`
	ModerationJobID string    `db:"moderation_job_id" json:"moderation_job_id"`
	PersonJobID     string    `db:"person_job_id"     json:"person_job_id"`
	CreatedAt       time.Time `db:"created_at"        json:"created_at"`
	Jobs            []*Job    `db:"-"                 json:"jobs,omitempty"`
}

// JobID returns the job id recorded for kind, or "" if none.
func (r *AnalysisRequest) JobID(kind JobKind) string {
	switch kind {
	case JobKindLabelDetection:
		return r.LabelJobID
	case JobKindContentModeration:
		return r.ModerationJobID
	case JobKindPersonTracking:
		return r.PersonJobID
	}
	return ""
}

// SetJobID records the job id for kind.
func (r *AnalysisRequest) SetJobID(kind JobKind, jobID string) {
	switch kind {
	case JobKindLabelDetection:
		r.LabelJobID = jobID
	case JobKindContentModeration:
		r.ModerationJobID = jobID
	case JobKindPersonTracking:
		r.PersonJobID = jobID
	}
}

// Complete reports whether every job kind has a job id.
func (r *AnalysisRequest) Complete() bool {
	return r.LabelJobID != "" && r.ModerationJobID != "" && r.PersonJobID != ""
}

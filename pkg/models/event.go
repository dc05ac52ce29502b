package models

import json "github.com/goccy/go-json"

// VideoEvent identifies one uploaded video.
type VideoEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size,omitempty"`
	ETag   string `json:"etag,omitempty"`
}

// VideoInfo is the video metadata carried on a completion notification.
type VideoInfo struct {
	S3ObjectName string `json:"S3ObjectName,omitempty"`
	S3Bucket     string `json:"S3Bucket,omitempty"`
}

// CompletionNotification is the message the analysis backend publishes when
// a job reaches a terminal status.
type CompletionNotification struct {
	JobID     string    `json:"JobId"`
	Status    string    `json:"Status"`
	API       string    `json:"API"`
	JobTag    string    `json:"JobTag,omitempty"`
	Timestamp int64     `json:"Timestamp,omitempty"`
	Video     VideoInfo `json:"Video"`
}

// QueueRecord is one message of a delivered batch. Body holds either the raw
// notification or a notification-service envelope wrapping it.
type QueueRecord struct {
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

// QueueBatch is a batch of queued completion notifications.
type QueueBatch struct {
	Records []QueueRecord `json:"Records"`
}

// NotificationEnvelope wraps a notification published through a topic.
type NotificationEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// S3EventNotification is the storage service's object-created event.
type S3EventNotification struct {
	Records []S3EventRecord `json:"Records"`
}

type S3EventRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
			ETag string `json:"eTag"`
		} `json:"object"`
	} `json:"s3"`
}

// Announcement is the processing started/failed message published once per
// dispatch attempt.
type Announcement struct {
	Status string        `json:"status"`
	Video  string        `json:"video"`
	Jobs   *JobGroupInfo `json:"jobs,omitempty"`
	Error  string        `json:"error,omitempty"`
}

const (
	AnnouncementStarted = "PROCESSING_STARTED"
	AnnouncementFailed  = "PROCESSING_FAILED"
)

// JobGroupInfo lists the jobs started for one video.
type JobGroupInfo struct {
	VideoKey        string `json:"video_key"`
	Bucket          string `json:"bucket"`
	LabelJobID      string `json:"label_job_id"`
	ModerationJobID string `json:"moderation_job_id"`
	PersonJobID     string `json:"person_job_id"`
	JobPrefix       string `json:"job_prefix"`
}

// Alert is the outbound threat alert. It is never persisted.
type Alert struct {
	AlertType     string              `json:"alert_type"`
	JobID         string              `json:"job_id"`
	API           string              `json:"api"`
	VideoInfo     VideoInfo           `json:"video_info"`
	ThreatCount   int                 `json:"threat_count"`
	ThreatSummary map[string][]string `json:"threat_summary"`
	Threats       []ThreatFinding     `json:"threats"`
	Timestamp     string              `json:"timestamp"`
}

const AlertTypeThreatDetected = "THREAT_DETECTED"

// DetectedObject is a general-purpose descriptor reported alongside findings.
type DetectedObject struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is the payload pushed to every realtime connection.
type AnalysisResult struct {
	Action           string           `json:"action"`
	VideoKey         string           `json:"video_key"`
	JobID            string           `json:"job_id,omitempty"`
	API              string           `json:"api,omitempty"`
	AnalysisComplete bool             `json:"analysis_complete"`
	ThreatsDetected  bool             `json:"threats_detected"`
	ThreatCount      int              `json:"threat_count"`
	Threats          []ThreatFinding  `json:"threats"`
	DetectedObjects  []DetectedObject `json:"detected_objects"`
	Summary          string           `json:"summary"`
	Timestamp        string           `json:"timestamp"`
	AnalysisMethod   string           `json:"analysis_method"`
}

const ActionAnalysisComplete = "analysis_complete"

const (
	AnalysisMethodSimulation  = "intelligent_simulation"
	AnalysisMethodFallback    = "fallback"
	AnalysisMethodRekognition = "rekognition"
)

// Marshal encodes the result as a delivery payload.
func (r AnalysisResult) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// Severity ranks findings for alert summaries.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities: Low < Medium < High < Critical. Unknown is 0.
func (s Severity) Rank() int { return severityRank[s] }

const (
	FindingTypeThreatLabel    = "THREAT_LABEL"
	FindingTypeUnsafeContent  = "UNSAFE_CONTENT"
	FindingTypeCrowdDetection = "CROWD_DETECTION"
)

const (
	MethodLabelDetection    = "label_detection"
	MethodContentModeration = "content_moderation"
	MethodPersonTracking    = "person_tracking"
	MethodFilenameAnalysis  = "filename_analysis"
	MethodFileAnalysis      = "file_analysis"
	MethodSimulatedAnalysis = "simulated_analysis"
	MethodFallback          = "fallback"
)

// ThreatFinding is one classified piece of evidence. Kind-specific fields are
// omitted when empty so persisted reports keep the per-kind record shape.
type ThreatFinding struct {
	Type            string     `json:"type"`
	Label           string     `json:"label,omitempty"`
	Confidence      float64    `json:"confidence"`
	Severity        Severity   `json:"severity,omitempty"`
	Timestamp       *int64     `json:"timestamp,omitempty"`
	DetectionMethod string     `json:"detection_method,omitempty"`
	Instances       []Instance `json:"instances,omitempty"`
	ParentName      *string    `json:"parent_name,omitempty"`
	PersonCount     int        `json:"person_count,omitempty"`
}

// MarshalJSON always writes instances for THREAT_LABEL findings, as an empty
// array when there are none. Other kinds never carry the field.
func (f ThreatFinding) MarshalJSON() ([]byte, error) {
	type plain ThreatFinding
	if f.Type != FindingTypeThreatLabel {
		return json.Marshal(plain(f))
	}
	instances := f.Instances
	if instances == nil {
		instances = []Instance{}
	}
	return json.Marshal(struct {
		plain
		Instances []Instance `json:"instances"`
	}{plain(f), instances})
}

// ThreatReport is the persisted aggregate for one (job id, job kind) pair.
type ThreatReport struct {
	JobID           string          `json:"job_id"`
	API             string          `json:"api"`
	Timestamp       time.Time       `json:"timestamp"`
	ThreatsDetected []ThreatFinding `json:"threats_detected"`
	ThreatCount     int             `json:"threat_count"`
}

// NewThreatReport builds a report for kind, stamped at createdAt (UTC).
func NewThreatReport(jobID string, kind JobKind, findings []ThreatFinding, createdAt time.Time) ThreatReport {
	if findings == nil {
		findings = []ThreatFinding{}
	}
	return ThreatReport{
		JobID:           jobID,
		API:             kind.API(),
		Timestamp:       createdAt.UTC(),
		ThreatsDetected: findings,
		ThreatCount:     len(findings),
	}
}

package analysis

import (
	"github.com/idan5353/video-threat-detection/pkg/models"
)

const (
	// DefaultMinConfidence is the confidence floor for direct detections.
	DefaultMinConfidence = 80.0
	// DefaultCrowdThreshold is the person count a timestamp bucket must exceed.
	DefaultCrowdThreshold = 5

	crowdConfidence = 95.0
	crowdLabel      = "Large Crowd"
)

// threatLabels is the curated set of threat-relevant labels and the severity
// assigned to a finding on each.
var threatLabels = map[string]models.Severity{
	"Weapon":              models.SeverityCritical,
	"Gun":                 models.SeverityCritical,
	"Knife":               models.SeverityCritical,
	"Rifle":               models.SeverityCritical,
	"Handgun":             models.SeverityCritical,
	"Pistol":              models.SeverityCritical,
	"Fire":                models.SeverityHigh,
	"Smoke":               models.SeverityHigh,
	"Explosion":           models.SeverityHigh,
	"Violence":            models.SeverityHigh,
	"Fighting":            models.SeverityHigh,
	"Crowd":               models.SeverityMedium,
	"Protest":             models.SeverityMedium,
	"Riot":                models.SeverityMedium,
	"Suspicious Activity": models.SeverityMedium,
}

// IsThreatLabel reports whether name is in the curated threat label set.
func IsThreatLabel(name string) bool {
	_, ok := threatLabels[name]
	return ok
}

// Classifier reduces raw detections into threat findings.
type Classifier struct {
	minConfidence  float64
	crowdThreshold int
}

// NewClassifier returns a Classifier. Non-positive arguments fall back to
// DefaultMinConfidence and DefaultCrowdThreshold.
func NewClassifier(minConfidence float64, crowdThreshold int) Classifier {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if crowdThreshold <= 0 {
		crowdThreshold = DefaultCrowdThreshold
	}
	return Classifier{minConfidence: minConfidence, crowdThreshold: crowdThreshold}
}

// MinConfidence returns the configured confidence floor.
func (c Classifier) MinConfidence() float64 { return c.minConfidence }

// Classify dispatches to the reducer for the detections' job kind.
// Returns an empty slice (never nil) when nothing qualifies.
func (c Classifier) Classify(d models.Detections) []models.ThreatFinding {
	switch d.Kind {
	case models.JobKindLabelDetection:
		return c.ReduceLabels(d.Labels)
	case models.JobKindContentModeration:
		return c.ReduceModeration(d.Moderation)
	case models.JobKindPersonTracking:
		return c.ReducePersons(d.Persons)
	}
	return []models.ThreatFinding{}
}

// ReduceLabels keeps curated threat labels at or above the confidence floor.
func (c Classifier) ReduceLabels(detections []models.LabelDetection) []models.ThreatFinding {
	findings := []models.ThreatFinding{}
	for _, d := range detections {
		severity, ok := threatLabels[d.Name]
		if !ok || d.Confidence < c.minConfidence {
			continue
		}
		instances := d.Instances
		if instances == nil {
			instances = []models.Instance{}
		}
		findings = append(findings, models.ThreatFinding{
			Type:            models.FindingTypeThreatLabel,
			Label:           d.Name,
			Confidence:      d.Confidence,
			Severity:        severity,
			Timestamp:       ms(d.Timestamp),
			DetectionMethod: models.MethodLabelDetection,
			Instances:       instances,
		})
	}
	return findings
}

// ReduceModeration keeps every moderation label at or above the confidence floor.
func (c Classifier) ReduceModeration(detections []models.ModerationDetection) []models.ThreatFinding {
	findings := []models.ThreatFinding{}
	for _, d := range detections {
		if d.Confidence < c.minConfidence {
			continue
		}
		parent := d.ParentName
		findings = append(findings, models.ThreatFinding{
			Type:            models.FindingTypeUnsafeContent,
			Label:           d.Name,
			Confidence:      d.Confidence,
			Severity:        models.SeverityHigh,
			Timestamp:       ms(d.Timestamp),
			DetectionMethod: models.MethodContentModeration,
			ParentName:      &parent,
		})
	}
	return findings
}

// ReducePersons groups detections by exact timestamp and emits one
// CROWD_DETECTION per bucket holding more than the crowd threshold.
// Buckets are reported in the order their timestamp was first seen.
func (c Classifier) ReducePersons(detections []models.PersonDetection) []models.ThreatFinding {
	counts := make(map[int64]int)
	var order []int64
	for _, d := range detections {
		if _, seen := counts[d.Timestamp]; !seen {
			order = append(order, d.Timestamp)
		}
		counts[d.Timestamp]++
	}

	findings := []models.ThreatFinding{}
	for _, ts := range order {
		n := counts[ts]
		if n <= c.crowdThreshold {
			continue
		}
		findings = append(findings, models.ThreatFinding{
			Type:            models.FindingTypeCrowdDetection,
			Label:           crowdLabel,
			Confidence:      crowdConfidence,
			Severity:        models.SeverityMedium,
			Timestamp:       ms(ts),
			DetectionMethod: models.MethodPersonTracking,
			PersonCount:     n,
		})
	}
	return findings
}

func ms(v int64) *int64 { return &v }

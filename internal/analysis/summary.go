package analysis

import (
	"fmt"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// HighestSeverity returns the most severe level present, or "" for no findings.
func HighestSeverity(findings []models.ThreatFinding) models.Severity {
	var top models.Severity
	for _, f := range findings {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}

// Summarize renders the human-readable line for a result. The highest
// severity present selects the branch; the count is of that severity only.
func Summarize(findings []models.ThreatFinding, objects []models.DetectedObject) string {
	if len(findings) == 0 {
		return fmt.Sprintf("✅ Analysis complete - No threats detected. Found %d objects.", len(objects))
	}

	counts := make(map[models.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}

	switch {
	case counts[models.SeverityCritical] > 0:
		return fmt.Sprintf("🚨 CRITICAL: %d critical threat(s) detected!", counts[models.SeverityCritical])
	case counts[models.SeverityHigh] > 0:
		return fmt.Sprintf("⚠️ HIGH ALERT: %d high-risk threat(s) detected!", counts[models.SeverityHigh])
	case counts[models.SeverityMedium] > 0:
		return fmt.Sprintf("⚠️ MEDIUM: %d potential threat(s) detected!", counts[models.SeverityMedium])
	default:
		return fmt.Sprintf("ℹ️ LOW: %d minor alert(s) detected.", counts[models.SeverityLow])
	}
}

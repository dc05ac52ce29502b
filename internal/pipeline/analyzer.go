package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/idan5353/video-threat-detection/internal/analysis"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// Analyzer classifies an uploaded video from its key and size alone and
// fans the result out. It serves videos the backend cannot score directly.
type Analyzer struct {
	sizes  SizeReader
	fanout Broadcaster
	now    func() time.Time
}

// NewAnalyzer creates a new Analyzer. A nil fanout skips delivery.
func NewAnalyzer(sizes SizeReader, fanout Broadcaster) *Analyzer {
	return &Analyzer{sizes: sizes, fanout: fanout, now: time.Now}
}

// Analyze runs the heuristic classifier for one video. When the object
// cannot be inspected the fixed fallback result is used instead.
func (a *Analyzer) Analyze(ctx context.Context, ev models.VideoEvent) (models.AnalysisResult, error) {
	if ev.Bucket == "" || ev.Key == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: bucket and key are required", ErrMalformedNotification)
	}

	method := models.AnalysisMethodSimulation
	var res analysis.HeuristicResult

	size, err := a.sizes.Size(ctx, ev.Bucket, ev.Key)
	if err != nil {
		slog.Warn("inspecting video failed, using fallback analysis", "video", ev.Key, "error", err)
		res = analysis.Fallback()
		method = models.AnalysisMethodFallback
	} else {
		res = analysis.Heuristic(ev.Key, size)
	}

	result := models.AnalysisResult{
		Action:           models.ActionAnalysisComplete,
		VideoKey:         ev.Key,
		AnalysisComplete: true,
		ThreatsDetected:  len(res.Findings) > 0,
		ThreatCount:      len(res.Findings),
		Threats:          res.Findings,
		DetectedObjects:  res.Objects,
		Summary:          analysis.Summarize(res.Findings, res.Objects),
		Timestamp:        a.now().UTC().Format(time.RFC3339),
		AnalysisMethod:   method,
	}
	slog.Info("video analyzed", "video", ev.Key, "method", method,
		"threats", result.ThreatCount, "summary", result.Summary)

	if a.fanout != nil {
		fanOut(ctx, a.fanout, result)
	}
	return result, nil
}

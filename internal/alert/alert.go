package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	json "github.com/goccy/go-json"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// ErrPublish is returned when a message could not be published.
var ErrPublish = errors.New("alert publish failed")

// maxAlertThreats is how many findings an alert carries in full.
const maxAlertThreats = 5

// maxSubjectLen is the notification service's subject length limit.
const maxSubjectLen = 100

// PublishAPI is the subset of the SNS client used here.
type PublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends threat alerts and job-failure notices to one topic.
// Errors are returned for logging; callers never fail the job on them.
type Publisher struct {
	client   PublishAPI
	topicARN string
	timeout  time.Duration
	now      func() time.Time
}

// NewPublisher creates a new Publisher.
func NewPublisher(client PublishAPI, topicARN string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Publisher{client: client, topicARN: topicARN, timeout: timeout, now: time.Now}
}

// BuildAlert assembles the alert for a report. Only the first five findings
// are included in full; ThreatSummary covers all of them.
func BuildAlert(report models.ThreatReport, video models.VideoInfo, at time.Time) models.Alert {
	summary := make(map[string][]string)
	for _, f := range report.ThreatsDetected {
		label := f.Label
		if label == "" {
			label = "Unknown"
		}
		summary[f.Type] = append(summary[f.Type], label)
	}

	threats := report.ThreatsDetected
	if len(threats) > maxAlertThreats {
		threats = threats[:maxAlertThreats]
	}

	return models.Alert{
		AlertType:     models.AlertTypeThreatDetected,
		JobID:         report.JobID,
		API:           report.API,
		VideoInfo:     video,
		ThreatCount:   len(report.ThreatsDetected),
		ThreatSummary: summary,
		Threats:       threats,
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
}

// PublishThreat publishes the alert for a report with at least one finding.
func (p *Publisher) PublishThreat(ctx context.Context, report models.ThreatReport, video models.VideoInfo) error {
	if report.ThreatCount == 0 {
		return nil
	}

	body, err := json.MarshalIndent(BuildAlert(report, video, p.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding alert: %w", ErrPublish, err)
	}

	subject := fmt.Sprintf("THREAT DETECTED - %d threats found", report.ThreatCount)
	return p.publish(ctx, subject, string(body))
}

// PublishJobFailure notifies that an analysis job ended FAILED.
func (p *Publisher) PublishJobFailure(ctx context.Context, jobID, api string) error {
	return p.publish(ctx,
		"Video Analysis Failed - "+api,
		fmt.Sprintf("Analysis job %s failed for %s", jobID, api))
}

func (p *Publisher) publish(ctx context.Context, subject, message string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(sanitizeSubject(subject)),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// sanitizeSubject keeps printable ASCII only and truncates to the subject limit.
func sanitizeSubject(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s) && len(out) < maxSubjectLen; i++ {
		if c := s[i]; c >= 0x20 && c < 0x7f {
			out = append(out, c)
		}
	}
	return string(out)
}

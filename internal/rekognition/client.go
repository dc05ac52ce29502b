package rekognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsrek "github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// Sentinel errors for analysis backend failures.
var (
	ErrBackendUnavailable = errors.New("analysis backend unavailable")
	ErrJobStart           = errors.New("analysis job start failed")
	ErrDetectionFetch     = errors.New("detection fetch failed")
	ErrCircuitOpen        = errors.New("analysis backend circuit open")
)

// Backend starts analysis jobs and fetches their detections.
type Backend interface {
	StartJob(ctx context.Context, kind models.JobKind, req StartRequest) (string, error)
	FetchDetections(ctx context.Context, kind models.JobKind, jobID string) (models.Detections, error)
}

// API is the subset of the Rekognition client used here.
type API interface {
	StartLabelDetection(ctx context.Context, in *awsrek.StartLabelDetectionInput, optFns ...func(*awsrek.Options)) (*awsrek.StartLabelDetectionOutput, error)
	StartContentModeration(ctx context.Context, in *awsrek.StartContentModerationInput, optFns ...func(*awsrek.Options)) (*awsrek.StartContentModerationOutput, error)
	StartPersonTracking(ctx context.Context, in *awsrek.StartPersonTrackingInput, optFns ...func(*awsrek.Options)) (*awsrek.StartPersonTrackingOutput, error)
	GetLabelDetection(ctx context.Context, in *awsrek.GetLabelDetectionInput, optFns ...func(*awsrek.Options)) (*awsrek.GetLabelDetectionOutput, error)
	GetContentModeration(ctx context.Context, in *awsrek.GetContentModerationInput, optFns ...func(*awsrek.Options)) (*awsrek.GetContentModerationOutput, error)
	GetPersonTracking(ctx context.Context, in *awsrek.GetPersonTrackingInput, optFns ...func(*awsrek.Options)) (*awsrek.GetPersonTrackingOutput, error)
}

// StartRequest holds the per-video parameters of a start call.
type StartRequest struct {
	Bucket        string
	Key           string
	JobTag        string
	RequestToken  string
	MinConfidence float64
}

// Config configures a Client.
type Config struct {
	TopicARN         string
	RoleARN          string
	CallTimeout      time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client implements Backend on top of Rekognition Video.
type Client struct {
	api     API
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
}

// NewClient creates a Client. Consecutive availability failures open the
// breaker; caller mistakes (bad parameters, missing jobs) never trip it.
func NewClient(api API, cfg Config) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "rekognition",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrBackendUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		api:     api,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// BreakerState reports the breaker state for health output.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) StartJob(ctx context.Context, kind models.JobKind, req StartRequest) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unsupported job kind %q", ErrJobStart, kind)
	}
	video := &types.Video{S3Object: &types.S3Object{
		Bucket: aws.String(req.Bucket),
		Name:   aws.String(req.Key),
	}}
	channel := &types.NotificationChannel{
		SNSTopicArn: aws.String(c.cfg.TopicARN),
		RoleArn:     aws.String(c.cfg.RoleARN),
	}
	var token *string
	if req.RequestToken != "" {
		token = aws.String(req.RequestToken)
	}
	var minConf *float32
	if kind.SupportsMinConfidence() && req.MinConfidence > 0 {
		minConf = aws.Float32(float32(req.MinConfidence))
	}

	res, err := c.call(ctx, func(ctx context.Context) (any, error) {
		switch kind {
		case models.JobKindLabelDetection:
			out, err := c.api.StartLabelDetection(ctx, &awsrek.StartLabelDetectionInput{
				Video:               video,
				NotificationChannel: channel,
				JobTag:              aws.String(req.JobTag),
				ClientRequestToken:  token,
				MinConfidence:       minConf,
			})
			if err != nil {
				return nil, err
			}
			return aws.ToString(out.JobId), nil
		case models.JobKindContentModeration:
			out, err := c.api.StartContentModeration(ctx, &awsrek.StartContentModerationInput{
				Video:               video,
				NotificationChannel: channel,
				JobTag:              aws.String(req.JobTag),
				ClientRequestToken:  token,
				MinConfidence:       minConf,
			})
			if err != nil {
				return nil, err
			}
			return aws.ToString(out.JobId), nil
		case models.JobKindPersonTracking:
			out, err := c.api.StartPersonTracking(ctx, &awsrek.StartPersonTrackingInput{
				Video:               video,
				NotificationChannel: channel,
				JobTag:              aws.String(req.JobTag),
				ClientRequestToken:  token,
			})
			if err != nil {
				return nil, err
			}
			return aws.ToString(out.JobId), nil
		}
		return "", nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrJobStart, kind.API(), err)
	}

	jobID := res.(string)
	if jobID == "" {
		return "", fmt.Errorf("%w: %s returned no job id", ErrJobStart, kind.API())
	}
	return jobID, nil
}

// FetchDetections reads every page of results for a completed job, in the
// backend's timestamp order.
func (c *Client) FetchDetections(ctx context.Context, kind models.JobKind, jobID string) (models.Detections, error) {
	d := models.Detections{Kind: kind}
	var err error
	switch kind {
	case models.JobKindLabelDetection:
		d.Labels, err = c.fetchLabels(ctx, jobID)
	case models.JobKindContentModeration:
		d.Moderation, err = c.fetchModeration(ctx, jobID)
	case models.JobKindPersonTracking:
		d.Persons, err = c.fetchPersons(ctx, jobID)
	default:
		return d, fmt.Errorf("%w: unsupported job kind %q", ErrDetectionFetch, kind)
	}
	if err != nil {
		return models.Detections{Kind: kind}, fmt.Errorf("%w: job %s: %w", ErrDetectionFetch, jobID, err)
	}
	return d, nil
}

func (c *Client) fetchLabels(ctx context.Context, jobID string) ([]models.LabelDetection, error) {
	var out []models.LabelDetection
	var next *string
	for {
		res, err := c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.GetLabelDetection(ctx, &awsrek.GetLabelDetectionInput{
				JobId:     aws.String(jobID),
				NextToken: next,
				SortBy:    types.LabelDetectionSortByTimestamp,
			})
		})
		if err != nil {
			return nil, err
		}
		page := res.(*awsrek.GetLabelDetectionOutput)
		for _, l := range page.Labels {
			out = append(out, convertLabel(l))
		}
		if next = page.NextToken; aws.ToString(next) == "" {
			return out, nil
		}
	}
}

func (c *Client) fetchModeration(ctx context.Context, jobID string) ([]models.ModerationDetection, error) {
	var out []models.ModerationDetection
	var next *string
	for {
		res, err := c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.GetContentModeration(ctx, &awsrek.GetContentModerationInput{
				JobId:     aws.String(jobID),
				NextToken: next,
				SortBy:    types.ContentModerationSortByTimestamp,
			})
		})
		if err != nil {
			return nil, err
		}
		page := res.(*awsrek.GetContentModerationOutput)
		for _, m := range page.ModerationLabels {
			if m.ModerationLabel == nil {
				continue
			}
			out = append(out, models.ModerationDetection{
				Timestamp:  m.Timestamp,
				Name:       aws.ToString(m.ModerationLabel.Name),
				ParentName: aws.ToString(m.ModerationLabel.ParentName),
				Confidence: float64(aws.ToFloat32(m.ModerationLabel.Confidence)),
			})
		}
		if next = page.NextToken; aws.ToString(next) == "" {
			return out, nil
		}
	}
}

func (c *Client) fetchPersons(ctx context.Context, jobID string) ([]models.PersonDetection, error) {
	var out []models.PersonDetection
	var next *string
	for {
		res, err := c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.GetPersonTracking(ctx, &awsrek.GetPersonTrackingInput{
				JobId:     aws.String(jobID),
				NextToken: next,
				SortBy:    types.PersonTrackingSortByTimestamp,
			})
		})
		if err != nil {
			return nil, err
		}
		page := res.(*awsrek.GetPersonTrackingOutput)
		for _, p := range page.Persons {
			det := models.PersonDetection{Timestamp: p.Timestamp}
			if p.Person != nil {
				det.Index = p.Person.Index
			}
			out = append(out, det)
		}
		if next = page.NextToken; aws.ToString(next) == "" {
			return out, nil
		}
	}
}

// call runs fn through the breaker under the per-call timeout. Errors caused
// by the caller's own context ending are returned as is and never count
// against the breaker.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := c.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		res, err := fn(callCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, classifyError(err)
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return res, err
}

// unavailableCodes are service error codes that mean "try again later".
var unavailableCodes = map[string]bool{
	"ThrottlingException":                    true,
	"ProvisionedThroughputExceededException": true,
	"InternalServerError":                    true,
	"ServiceUnavailableException":            true,
	"LimitExceededException":                 true,
}

// classifyError maps transport and service errors to sentinel errors. A
// deadline here is the per-call timeout, since call filters out errors from
// the parent context.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if unavailableCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		return err
	}

	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

func convertLabel(l types.LabelDetection) models.LabelDetection {
	det := models.LabelDetection{Timestamp: l.Timestamp}
	if l.Label == nil {
		return det
	}
	det.Name = aws.ToString(l.Label.Name)
	det.Confidence = float64(aws.ToFloat32(l.Label.Confidence))
	for _, in := range l.Label.Instances {
		inst := models.Instance{Confidence: float64(aws.ToFloat32(in.Confidence))}
		if b := in.BoundingBox; b != nil {
			inst.BoundingBox = &models.BoundingBox{
				Width:  float64(aws.ToFloat32(b.Width)),
				Height: float64(aws.ToFloat32(b.Height)),
				Left:   float64(aws.ToFloat32(b.Left)),
				Top:    float64(aws.ToFloat32(b.Top)),
			}
		}
		det.Instances = append(det.Instances, inst)
	}
	return det
}

// Compile-time checks.
var (
	_ Backend = (*Client)(nil)
	_ API     = (*awsrek.Client)(nil)
)

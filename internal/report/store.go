package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// ErrSave is returned when a report could not be written.
var ErrSave = errors.New("report save failed")

// KeyPrefix is the object-key prefix under which reports are stored.
const KeyPrefix = "threat-results"

// Store persists threat reports.
type Store interface {
	Save(ctx context.Context, report models.ThreatReport) (string, error)
}

// PutObjectAPI is the subset of the S3 client used by S3Store.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes reports as indented JSON objects into one bucket.
type S3Store struct {
	client  PutObjectAPI
	bucket  string
	timeout time.Duration
}

// NewS3Store creates a new S3Store.
func NewS3Store(client PutObjectAPI, bucket string, timeout time.Duration) *S3Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &S3Store{client: client, bucket: bucket, timeout: timeout}
}

// Key returns the object key for a report:
// threat-results/YYYY/MM/DD/<job-id>-<api>.json, dated in UTC.
func Key(report models.ThreatReport) string {
	return fmt.Sprintf("%s/%s/%s-%s.json",
		KeyPrefix, report.Timestamp.UTC().Format("2006/01/02"), report.JobID, report.API)
}

// Save writes the report and returns its key. Saving the same report again
// overwrites the same object.
func (s *S3Store) Save(ctx context.Context, report models.ThreatReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encoding report: %w", ErrSave, err)
	}

	key := Key(report)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s/%s: %w", ErrSave, s.bucket, key, err)
	}
	return key, nil
}

var _ Store = (*S3Store)(nil)

package report_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idan5353/video-threat-detection/internal/report"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type fakeS3 struct {
	puts    []putCall
	putErr  error
	headErr error
	size    int64
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(f.size)}, nil
}

func sampleReport(t time.Time) models.ThreatReport {
	ts := int64(1000)
	return models.NewThreatReport("job-123", models.JobKindLabelDetection, []models.ThreatFinding{{
		Type:       models.FindingTypeThreatLabel,
		Label:      "Gun",
		Confidence: 97.2,
		Severity:   models.SeverityCritical,
		Timestamp:  &ts,
		Instances:  []models.Instance{},
	}}, t)
}

func TestKey_DatedUTC(t *testing.T) {
	// 23:30 in UTC-5 is the next day in UTC.
	loc := time.FixedZone("EST", -5*3600)
	r := sampleReport(time.Date(2024, 3, 9, 23, 30, 0, 0, loc))

	assert.Equal(t, "threat-results/2024/03/10/job-123-StartLabelDetection.json", report.Key(r))
}

func TestSave_WritesIndentedJSON(t *testing.T) {
	fake := &fakeS3{}
	s := report.NewS3Store(fake, "results", time.Second)
	r := sampleReport(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	key, err := s.Save(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "threat-results/2024/01/02/job-123-StartLabelDetection.json", key)

	require.Len(t, fake.puts, 1)
	put := fake.puts[0]
	assert.Equal(t, "results", put.bucket)
	assert.Equal(t, key, put.key)
	assert.Equal(t, "application/json", put.contentType)
	assert.Contains(t, string(put.body), "\n  \"job_id\": \"job-123\"")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(put.body, &decoded))
	assert.Equal(t, "StartLabelDetection", decoded["api"])
	assert.Equal(t, float64(1), decoded["threat_count"])
	assert.Equal(t, "2024-01-02T03:04:05Z", decoded["timestamp"])

	threats := decoded["threats_detected"].([]any)
	require.Len(t, threats, 1)
	finding := threats[0].(map[string]any)
	assert.Equal(t, "Gun", finding["label"])
	assert.Equal(t, float64(1000), finding["timestamp"])
	assert.Equal(t, []any{}, finding["instances"])
}

func TestSave_SameReportSameKey(t *testing.T) {
	fake := &fakeS3{}
	s := report.NewS3Store(fake, "results", time.Second)
	r := sampleReport(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	k1, err := s.Save(context.Background(), r)
	require.NoError(t, err)
	k2, err := s.Save(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	require.Len(t, fake.puts, 2)
	assert.Equal(t, fake.puts[0].body, fake.puts[1].body)
}

func TestSave_Error(t *testing.T) {
	fake := &fakeS3{putErr: errors.New("access denied")}
	s := report.NewS3Store(fake, "results", time.Second)

	_, err := s.Save(context.Background(), sampleReport(time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrSave)
	assert.Contains(t, err.Error(), "access denied")
}

func TestObjectInspector_Size(t *testing.T) {
	o := report.NewObjectInspector(&fakeS3{size: 15 * 1024 * 1024}, time.Second)
	size, err := o.Size(context.Background(), "uploads", "videos/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(15*1024*1024), size)

	o = report.NewObjectInspector(&fakeS3{headErr: errors.New("not found")}, time.Second)
	_, err = o.Size(context.Background(), "uploads", "missing.mp4")
	assert.Error(t, err)
}

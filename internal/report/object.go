package report

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// HeadObjectAPI is the subset of the S3 client used by ObjectInspector.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ObjectInspector reads uploaded video metadata.
type ObjectInspector struct {
	client  HeadObjectAPI
	timeout time.Duration
}

func NewObjectInspector(client HeadObjectAPI, timeout time.Duration) *ObjectInspector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ObjectInspector{client: client, timeout: timeout}
}

// Size returns the byte size of bucket/key.
func (o *ObjectInspector) Size(ctx context.Context, bucket, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head %s/%s: %w", bucket, key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var ErrMetric = errors.New("metric emit failed")

const (
	MetricNamespace = "VideoThreatDetection"
	MetricName      = "ThreatsDetected"
)

// MetricAPI is the subset of the CloudWatch client used here.
type MetricAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricEmitter records the ThreatsDetected count per job kind.
type MetricEmitter struct {
	client  MetricAPI
	timeout time.Duration
}

func NewMetricEmitter(client MetricAPI, timeout time.Duration) *MetricEmitter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MetricEmitter{client: client, timeout: timeout}
}

// ThreatsDetected emits count with dimension API=<api>.
func (m *MetricEmitter) ThreatsDetected(ctx context.Context, api string, count int) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(MetricNamespace),
		MetricData: []types.MetricDatum{{
			MetricName: aws.String(MetricName),
			Value:      aws.Float64(float64(count)),
			Unit:       types.StandardUnitCount,
			Dimensions: []types.Dimension{{
				Name:  aws.String("API"),
				Value: aws.String(api),
			}},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetric, err)
	}
	return nil
}

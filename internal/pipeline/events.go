package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// ParseVideoEvents extracts the uploaded objects from an object-created
// event. Object keys arrive form-encoded ("+" for space).
func ParseVideoEvents(body []byte) ([]models.VideoEvent, error) {
	var n models.S3EventNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}
	if len(n.Records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrMalformedNotification)
	}

	events := make([]models.VideoEvent, 0, len(n.Records))
	for i, rec := range n.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: decoding key: %w", ErrMalformedNotification, i, err)
		}
		if rec.S3.Bucket.Name == "" || key == "" {
			return nil, fmt.Errorf("%w: record %d: bucket and key are required", ErrMalformedNotification, i)
		}
		events = append(events, models.VideoEvent{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
			Size:   rec.S3.Object.Size,
			ETag:   strings.Trim(rec.S3.Object.ETag, `"`),
		})
	}
	return events, nil
}

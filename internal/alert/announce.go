package alert

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// Announcer publishes processing started/failed messages for dispatches.
type Announcer struct {
	pub *Publisher
}

// NewAnnouncer creates an Announcer publishing through pub's topic.
func NewAnnouncer(pub *Publisher) *Announcer {
	return &Announcer{pub: pub}
}

// Started announces that every job for the video was dispatched.
func (a *Announcer) Started(ctx context.Context, jobs models.JobGroupInfo) error {
	body, err := json.Marshal(models.Announcement{
		Status: models.AnnouncementStarted,
		Video:  jobs.VideoKey,
		Jobs:   &jobs,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding announcement: %w", ErrPublish, err)
	}
	return a.pub.publish(ctx, "Video Processing Started: "+jobs.VideoKey, string(body))
}

// Failed announces that dispatch for the video was aborted.
func (a *Announcer) Failed(ctx context.Context, videoKey string, cause error) error {
	body, err := json.Marshal(models.Announcement{
		Status: models.AnnouncementFailed,
		Video:  videoKey,
		Error:  fmt.Sprintf("Error processing video %s: %v", videoKey, cause),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding announcement: %w", ErrPublish, err)
	}
	return a.pub.publish(ctx, "Video Processing Error", string(body))
}

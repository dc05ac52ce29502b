package pipeline

import (
	"errors"
	"fmt"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

var (
	ErrDispatch              = errors.New("video dispatch failed")
	ErrDetectionFetch        = errors.New("detection fetch failed")
	ErrPersistence           = errors.New("persistence failed")
	ErrAlertPublish          = errors.New("alert publish failed")
	ErrDelivery              = errors.New("realtime delivery failed")
	ErrMalformedNotification = errors.New("malformed notification")
)

// DispatchError reports the job kind whose start call aborted a dispatch.
// The whole event is safe to retry.
type DispatchError struct {
	Kind  models.JobKind
	Video string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatching %s for %s: %v", e.Kind.API(), e.Video, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Is matches ErrDispatch so callers need not type-assert.
func (e *DispatchError) Is(target error) bool { return target == ErrDispatch }

// Retryable is always true: start calls carry idempotency tokens.
func (e *DispatchError) Retryable() bool { return true }

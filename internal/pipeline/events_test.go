package pipeline

import (
	"errors"
	"testing"
)

func TestParseVideoEvents(t *testing.T) {
	body := []byte(`{"Records":[
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"videos/My+Party%281%29.mp4","size":2048,"eTag":"\"abc123\""}}},
		{"s3":{"bucket":{"name":"uploads"},"object":{"key":"videos/plain.mov","size":10}}}
	]}`)

	events, err := ParseVideoEvents(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if first.Key != "videos/My Party(1).mp4" {
		t.Errorf("expected decoded key, got %q", first.Key)
	}
	if first.Bucket != "uploads" || first.Size != 2048 {
		t.Errorf("unexpected event %+v", first)
	}
	if first.ETag != "abc123" {
		t.Errorf("expected unquoted etag, got %q", first.ETag)
	}
	if events[1].Key != "videos/plain.mov" || events[1].ETag != "" {
		t.Errorf("unexpected event %+v", events[1])
	}
}

func TestParseVideoEvents_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":   `nope`,
		"no records": `{"Records":[]}`,
		"bad escape": `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":"bad%zz"}}}]}`,
		"no bucket":  `{"Records":[{"s3":{"bucket":{"name":""},"object":{"key":"k.mp4"}}}]}`,
		"no key":     `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":""}}}]}`,
	}
	for name, b := range cases {
		if _, err := ParseVideoEvents([]byte(b)); !errors.Is(err, ErrMalformedNotification) {
			t.Errorf("%s: expected ErrMalformedNotification, got %v", name, err)
		}
	}
}

func TestDispatchError_Message(t *testing.T) {
	err := &DispatchError{Kind: "PERSON_TRACKING", Video: "videos/a.mp4", Err: errBoom}
	if err.Error() != "dispatching StartPersonTracking for videos/a.mp4: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrDispatch) || !errors.Is(err, errBoom) {
		t.Error("expected both ErrDispatch and the cause to match")
	}
}

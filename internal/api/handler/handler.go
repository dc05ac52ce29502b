// Package handler implements the HTTP endpoints that accept pipeline events,
// connection lifecycle events and status lookups.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/idan5353/video-threat-detection/internal/api/response"
)

// maxBodyBytes bounds every event payload.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return body, nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		response.Error(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
			"Request body exceeds 1 MiB", nil)
		return
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body", nil)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idan5353/video-threat-detection/internal/store"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

type mockRequestReader struct {
	req *models.AnalysisRequest
	err error
}

func (m *mockRequestReader) GetAnalysisRequestByHash(_ context.Context, hash string) (*models.AnalysisRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.req == nil || m.req.ContentHash != hash {
		return nil, store.ErrNotFound
	}
	return m.req, nil
}

func getRequest(hash string) *http.Request {
	return withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/requests/"+hash, nil), "contentHash", hash)
}

func TestGetRequest_Found(t *testing.T) {
	corr := uuid.New()
	rr := &mockRequestReader{req: &models.AnalysisRequest{
		CorrelationID: corr,
		ContentHash:   "abc123",
		Key:           "videos/a.mp4",
		LabelJobID:    "job-1",
		Jobs: []*models.Job{
			{JobID: "job-1", Kind: models.JobKindLabelDetection, Status: models.JobStatusSucceeded, CorrelationID: corr},
		},
	}}
	handler := NewGetRequestHandler(rr)

	rec := httptest.NewRecorder()
	handler(rec, getRequest("abc123"))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AnalysisRequest
	decodeData(t, rec, &got)
	assert.Equal(t, corr, got.CorrelationID)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, models.JobStatusSucceeded, got.Jobs[0].Status)
}

func TestGetRequest_NotFound(t *testing.T) {
	handler := NewGetRequestHandler(&mockRequestReader{})

	rec := httptest.NewRecorder()
	handler(rec, getRequest("missing"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetRequest_StoreError(t *testing.T) {
	handler := NewGetRequestHandler(&mockRequestReader{err: errors.New("db down")})

	rec := httptest.NewRecorder()
	handler(rec, getRequest("abc123"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

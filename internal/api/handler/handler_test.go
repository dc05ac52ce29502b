package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withURLParams attaches chi route params so handlers can be called directly.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var env struct {
		Error apiError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}

func s3Event(keys ...string) string {
	type object struct {
		Key  string `json:"key"`
		Size int64  `json:"size"`
		ETag string `json:"eTag"`
	}
	type record struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object object `json:"object"`
		} `json:"s3"`
	}
	var n struct {
		Records []record `json:"Records"`
	}
	for _, k := range keys {
		var rec record
		rec.S3.Bucket.Name = "uploads"
		rec.S3.Object = object{Key: k, Size: 4096, ETag: `"etag-` + k + `"`}
		n.Records = append(n.Records, rec)
	}
	b, _ := json.Marshal(n)
	return string(b)
}

func TestReadBody_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/events/video", bytes.NewReader(big))
	rec := httptest.NewRecorder()

	_, err := readBody(rec, r)
	require.ErrorIs(t, err, errBodyTooLarge)

	writeBodyError(rec, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "BODY_TOO_LARGE", decodeError(t, rec).Code)
}

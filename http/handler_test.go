package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sagarc03/vaultbox"
	vaultboxhttp "github.com/sagarc03/vaultbox/http"
	"github.com/sagarc03/vaultbox/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService is a mock implementation of http.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Upload(ctx context.Context, req vaultbox.UploadRequest, content io.Reader) (vaultbox.FileMetadata, error) {
	args := m.Called(ctx, req, content)
	return args.Get(0).(vaultbox.FileMetadata), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, id uuid.UUID) (vaultbox.Download, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(vaultbox.Download), args.Error(1)
}

func (m *MockService) Info(ctx context.Context, id uuid.UUID) (vaultbox.FileMetadata, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(vaultbox.FileMetadata), args.Error(1)
}

func (m *MockService) List(ctx context.Context, query vaultbox.ListQuery) (vaultbox.ListResult, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(vaultbox.ListResult), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newHandler(service *MockService) http.Handler {
	return vaultboxhttp.NewHandler(&vaultboxhttp.HandlerConfig{}, service).Router()
}

func sampleFile() vaultbox.FileMetadata {
	owner := uuid.New()
	return vaultbox.FileMetadata{
		ID:         uuid.New(),
		InternalID: "abc.txt",
		OwnerID:    &owner,
		Title:      "report.txt",
		Size:       11,
		Format:     "text/plain",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestHandler_List(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		service := new(MockService)
		file := sampleFile()

		service.On("List", mock.Anything, vaultbox.ListQuery{Limit: 10}).
			Return(vaultbox.ListResult{Items: []vaultbox.FileMetadata{file}, Total: 42}, nil)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body vaultboxhttp.ListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 10, body.Limit)
		assert.Equal(t, 0, body.Offset)
		assert.Equal(t, 42, body.Count)
		require.Len(t, body.Data, 1)
		assert.Equal(t, file.ID, body.Data[0].ID)
		assert.Empty(t, body.Data[0].InternalID, "object key must not leak")
		service.AssertExpectations(t)
	})

	t.Run("filters", func(t *testing.T) {
		service := new(MockService)
		owner := uuid.New()

		service.On("List", mock.Anything, mock.MatchedBy(func(q vaultbox.ListQuery) bool {
			return q.Limit == 5 && q.Offset == 15 && q.ShowDeleted && q.OwnerID != nil && *q.OwnerID == owner
		})).Return(vaultbox.ListResult{}, nil)

		url := fmt.Sprintf("/api/files?owner_id=%s&show_deleted=true&limit=5&offset=15", owner)
		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", url, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[],"limit":5,"offset":15,"count":0}`, rec.Body.String())
		service.AssertExpectations(t)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		tests := map[string]int{"0": 1, "-3": 1, "5000": 1000, "abc": 10}
		for in, want := range tests {
			service := new(MockService)
			service.On("List", mock.Anything, mock.MatchedBy(func(q vaultbox.ListQuery) bool {
				return q.Limit == want
			})).Return(vaultbox.ListResult{}, nil)

			rec := httptest.NewRecorder()
			newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files?limit="+in, nil))

			assert.Equal(t, http.StatusOK, rec.Code, "limit=%s", in)
			service.AssertExpectations(t)
		}
	})

	t.Run("bad query", func(t *testing.T) {
		for _, q := range []string{"offset=-1", "offset=x", "show_deleted=maybe", "owner_id=nope"} {
			service := new(MockService)

			rec := httptest.NewRecorder()
			newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files?"+q, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
			service.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		}
	})

	t.Run("service error", func(t *testing.T) {
		service := new(MockService)
		service.On("List", mock.Anything, mock.Anything).Return(vaultbox.ListResult{}, errors.New("db down"))

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

// multipartBody builds a form with one file field. An empty contentType leaves the
// part header out.
func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	require.NoError(t, mw.WriteField("note", "ignored"))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestHandler_Upload(t *testing.T) {
	owner := uuid.New()

	t.Run("streams file part", func(t *testing.T) {
		service := new(MockService)
		file := sampleFile()
		content := []byte("hello world")

		var received []byte
		service.On("Upload", mock.Anything, mock.MatchedBy(func(req vaultbox.UploadRequest) bool {
			return req.Filename == "report.txt" && req.ContentType == "text/plain" && req.OwnerID != nil && *req.OwnerID == owner
		}), mock.Anything).Run(func(args mock.Arguments) {
			received, _ = io.ReadAll(args.Get(2).(io.Reader))
		}).Return(file, nil)

		body, ct := multipartBody(t, "file", "report.txt", "text/plain", content)
		req := httptest.NewRequest("POST", "/api/files?owner_id="+owner.String(), body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()

		newHandler(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, content, received)

		var got vaultbox.FileMetadata
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, file.ID, got.ID)
		assert.Equal(t, "report.txt", got.Title)
		service.AssertExpectations(t)
	})

	t.Run("part without content type", func(t *testing.T) {
		service := new(MockService)
		service.On("Upload", mock.Anything, mock.MatchedBy(func(req vaultbox.UploadRequest) bool {
			return req.ContentType == ""
		}), mock.Anything).Return(sampleFile(), nil)

		body, ct := multipartBody(t, "file", "data", "", []byte("x"))
		req := httptest.NewRequest("POST", "/api/files?owner_id="+owner.String(), body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()

		newHandler(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("request errors", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "a.txt", "text/plain", []byte("x"))
		other, otherCT := multipartBody(t, "attachment", "a.txt", "text/plain", []byte("x"))

		tests := []struct {
			name string
			url  string
			body io.Reader
			ct   string
		}{
			{"missing owner", "/api/files", body, ct},
			{"bad owner", "/api/files?owner_id=nope", body, ct},
			{"not multipart", "/api/files?owner_id=" + owner.String(), strings.NewReader("raw"), "text/plain"},
			{"no file field", "/api/files?owner_id=" + owner.String(), other, otherCT},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				service := new(MockService)
				req := httptest.NewRequest("POST", tt.url, tt.body)
				req.Header.Set("Content-Type", tt.ct)
				rec := httptest.NewRecorder()

				newHandler(service).ServeHTTP(rec, req)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				service.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("service errors", func(t *testing.T) {
		tests := []struct {
			err  error
			code int
		}{
			{fmt.Errorf("upload: %w", vaultbox.ErrUploadTooLarge), http.StatusRequestEntityTooLarge},
			{fmt.Errorf("upload: %w", vaultbox.ErrInvalidInput), http.StatusBadRequest},
			{fmt.Errorf("upload: %w: part 2", vaultbox.ErrUploadFailed), http.StatusBadGateway},
			{errors.New("insert failed"), http.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.err.Error(), func(t *testing.T) {
				service := new(MockService)
				service.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(vaultbox.FileMetadata{}, tt.err)

				body, ct := multipartBody(t, "file", "a.txt", "text/plain", []byte("x"))
				req := httptest.NewRequest("POST", "/api/files?owner_id="+owner.String(), body)
				req.Header.Set("Content-Type", ct)
				rec := httptest.NewRecorder()

				newHandler(service).ServeHTTP(rec, req)

				assert.Equal(t, tt.code, rec.Code)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			})
		}
	})

	t.Run("client cancelled mid upload", func(t *testing.T) {
		service := new(MockService)
		service.On("Upload", mock.Anything, mock.Anything, mock.Anything).
			Return(vaultbox.FileMetadata{}, fmt.Errorf("upload: %w: %w", vaultbox.ErrUploadFailed, context.Canceled))

		cancelled := metrics.UploadsTotal.WithLabelValues(metrics.ResultCanceled)
		failed := metrics.UploadsTotal.WithLabelValues(metrics.ResultError)
		cancelledBefore, failedBefore := testutil.ToFloat64(cancelled), testutil.ToFloat64(failed)

		body, ct := multipartBody(t, "file", "a.txt", "text/plain", []byte("x"))
		req := httptest.NewRequest("POST", "/api/files?owner_id="+owner.String(), body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()

		newHandler(service).ServeHTTP(rec, req)

		assert.Equal(t, 499, rec.Code)
		assert.Contains(t, rec.Body.String(), "cancelled")
		assert.Equal(t, cancelledBefore+1, testutil.ToFloat64(cancelled))
		assert.Equal(t, failedBefore, testutil.ToFloat64(failed))
	})
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func download(body io.ReadCloser, size int64) vaultbox.Download {
	return vaultbox.Download{
		Metadata: sampleFile(),
		Headers: vaultbox.Headers{
			ContentDisposition: vaultbox.ContentDisposition("report.txt"),
			ContentLength:      size,
			ContentType:        "text/plain",
		},
		Body: body,
	}
}

func TestHandler_Get(t *testing.T) {
	id := uuid.New()

	t.Run("streams body with headers", func(t *testing.T) {
		service := new(MockService)
		body := &trackingBody{Reader: strings.NewReader("hello world")}
		service.On("Get", mock.Anything, id).Return(download(body, 11), nil)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/"+id.String(), nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello world", rec.Body.String())
		assert.Equal(t, "11", rec.Header().Get("Content-Length"))
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
		assert.Equal(t, vaultbox.ContentDisposition("report.txt"), rec.Header().Get("Content-Disposition"))
		assert.True(t, body.closed)
	})

	t.Run("empty file", func(t *testing.T) {
		service := new(MockService)
		body := &trackingBody{Reader: strings.NewReader("")}
		service.On("Get", mock.Anything, id).Return(download(body, 0), nil)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/"+id.String(), nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("Content-Length"))
		assert.Empty(t, rec.Body.String())
	})

	t.Run("fetch failure before first byte", func(t *testing.T) {
		service := new(MockService)
		body := &trackingBody{Reader: failingReader{err: fmt.Errorf("%w: connection reset", vaultbox.ErrDownloadFailed)}}
		service.On("Get", mock.Anything, id).Return(download(body, 11), nil)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/"+id.String(), nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "download_failed")
		assert.Empty(t, rec.Header().Get("Content-Disposition"))
		assert.True(t, body.closed)
	})

	t.Run("not found", func(t *testing.T) {
		service := new(MockService)
		service.On("Get", mock.Anything, id).Return(vaultbox.Download{}, fmt.Errorf("get file: %w", vaultbox.ErrNotFound))

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/"+id.String(), nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})

	t.Run("invalid id", func(t *testing.T) {
		service := new(MockService)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		service.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestHandler_Info(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		service := new(MockService)
		file := sampleFile()
		service.On("Info", mock.Anything, file.ID).Return(file, nil)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/"+file.ID.String()+"/info", nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, file.ID.String(), got["id"])
		assert.Equal(t, "report.txt", got["title"])
		assert.Equal(t, float64(11), got["size"])
		assert.Equal(t, "text/plain", got["format"])
		assert.Equal(t, false, got["is_deleted"])
		assert.Nil(t, got["deleted_at"])
		assert.NotContains(t, got, "internal_id")
	})

	t.Run("not found", func(t *testing.T) {
		service := new(MockService)
		id := uuid.New()
		service.On("Info", mock.Anything, id).Return(vaultbox.FileMetadata{}, vaultbox.ErrNotFound)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("GET", "/api/files/"+id.String()+"/info", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Delete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		service := new(MockService)
		id := uuid.New()
		service.On("Delete", mock.Anything, id).Return(nil)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/files/"+id.String(), nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		service.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		service := new(MockService)
		id := uuid.New()
		service.On("Delete", mock.Anything, id).Return(fmt.Errorf("delete file: %w", vaultbox.ErrNotFound))

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/files/"+id.String(), nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		service := new(MockService)

		rec := httptest.NewRecorder()
		newHandler(service).ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/files/123", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Health(t *testing.T) {
	t.Run("no pinger", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newHandler(new(MockService)).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("dependency down", func(t *testing.T) {
		pinger := new(MockPinger)
		pinger.On("Ping", mock.Anything).Return(errors.New("connection refused"))
		h := vaultboxhttp.NewHandler(&vaultboxhttp.HandlerConfig{Health: pinger}, new(MockService)).Router()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		pinger.AssertExpectations(t)
	})
}

func TestHandler_Metrics(t *testing.T) {
	service := new(MockService)
	service.On("List", mock.Anything, mock.Anything).Return(vaultbox.ListResult{}, nil)
	h := newHandler(service)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/files", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vaultbox_http_requests_total{method="GET",route="/api/files`)
}

func TestHandler_CORS(t *testing.T) {
	cfg := &vaultboxhttp.HandlerConfig{
		CORS: vaultboxhttp.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"https://example.com"},
			AllowedMethods: []string{"GET", "POST", "DELETE"},
		},
	}
	h := vaultboxhttp.NewHandler(cfg, new(MockService)).Router()

	req := httptest.NewRequest("OPTIONS", "/api/files", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

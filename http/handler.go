package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/metrics"
)

const (
	defaultListLimit = 10
	maxListLimit     = 1000

	// uploadField is the multipart form field carrying the file.
	uploadField = "file"
)

type Service interface {
	Upload(ctx context.Context, req vaultbox.UploadRequest, content io.Reader) (vaultbox.FileMetadata, error)
	Get(ctx context.Context, id uuid.UUID) (vaultbox.Download, error)
	Info(ctx context.Context, id uuid.UUID) (vaultbox.FileMetadata, error)
	List(ctx context.Context, query vaultbox.ListQuery) (vaultbox.ListResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	CORS CORSConfig
	// Health is pinged by /healthz. Nil reports healthy.
	Health Pinger
}

// Handler provides HTTP handlers for file operations.
type Handler struct {
	config  HandlerConfig
	service Service
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	return &Handler{
		config:  *config,
		service: service,
	}
}

// Router returns an http.Handler serving the file API, /healthz and /metrics.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/files", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleUpload)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/info", h.handleInfo)
		r.Delete("/{id}", h.handleDelete)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		if err := h.config.Health.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "err", err)
			WriteError(w, http.StatusServiceUnavailable, "unavailable", "Dependency unavailable")
			return
		}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := vaultbox.ListQuery{
		Limit: defaultListLimit,
	}

	if s := q.Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			query.Limit = max(1, min(maxListLimit, parsed))
		}
	}

	if s := q.Get("offset"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, "invalid_offset", "Offset must be a non-negative integer")
			return
		}
		query.Offset = parsed
	}

	if s := q.Get("show_deleted"); s != "" {
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_show_deleted", "show_deleted must be a boolean")
			return
		}
		query.ShowDeleted = parsed
	}

	if s := q.Get("owner_id"); s != "" {
		owner, err := uuid.Parse(s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a UUID")
			return
		}
		query.OwnerID = &owner
	}

	result, err := h.service.List(r.Context(), query)
	if err != nil {
		HandleError(w, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []vaultbox.FileMetadata{}
	}

	_ = WriteJSON(w, http.StatusOK, ListResponse{
		Data:   items,
		Limit:  query.Limit,
		Offset: query.Offset,
		Count:  result.Total,
	})
}

// handleUpload streams the "file" part of a multipart form to the service without
// buffering it.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	s := r.URL.Query().Get("owner_id")
	if s == "" {
		WriteError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id is required")
		return
	}
	owner, err := uuid.Parse(s)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a UUID")
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_form", "Expected a multipart/form-data body")
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_form", "Missing file field")
		return
	}
	defer func() { _ = part.Close() }()

	req := vaultbox.UploadRequest{
		OwnerID:     &owner,
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
	}

	meta, err := h.service.Upload(r.Context(), req, part)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(uploadResult(err)).Inc()
		HandleError(w, err)
		return
	}

	metrics.UploadsTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.UploadedBytes.Add(float64(meta.Size))

	_ = WriteJSON(w, http.StatusCreated, meta)
}

func uploadResult(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return metrics.ResultCanceled
	case errors.Is(err, vaultbox.ErrUploadTooLarge):
		return metrics.ResultTooBig
	default:
		return metrics.ResultError
	}
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField {
			return part, nil
		}
		_ = part.Close()
	}
}

// handleGet streams the file body. The first read happens before any header is
// written so a failed fetch still gets a proper error status.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	dl, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = dl.Body.Close() }()

	body := bufio.NewReader(dl.Body)
	if _, err := body.Peek(1); err != nil && !errors.Is(err, io.EOF) {
		HandleError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", dl.Headers.ContentDisposition)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Headers.ContentLength, 10))
	w.Header().Set("Content-Type", dl.Headers.ContentType)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		slog.Error("download interrupted", "file_id", id, "err", err)
	}
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	meta, err := h.service.Info(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, meta)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "File id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/vaultbox"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListResponse is the body of GET /api/files.
type ListResponse struct {
	Data   []vaultbox.FileMetadata `json:"data"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Count  int                     `json:"count"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes appropriate error response based on error type
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body. Upload and download errors wrap
		// the cancellation, so this case comes first.
		slog.Debug("request cancelled", "error", err)
		WriteError(w, 499, "cancelled", "Request cancelled")
	case errors.Is(err, vaultbox.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Object not found")
	case errors.Is(err, vaultbox.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, vaultbox.ErrUploadTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "File exceeds the maximum size")
	case errors.Is(err, vaultbox.ErrUploadFailed):
		slog.Error("upload failed", "error", err)
		WriteError(w, http.StatusBadGateway, "upload_failed", "Object storage rejected the upload")
	case errors.Is(err, vaultbox.ErrDownloadFailed):
		slog.Error("download failed", "error", err)
		WriteError(w, http.StatusBadGateway, "download_failed", "Object storage read failed")
	default:
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

package vaultbox

import "errors"

var (
	// ErrNotFound is returned when a metadata row or its backing object does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUploadTooLarge is returned when an upload exceeds the configured maximum size
	ErrUploadTooLarge = errors.New("upload too large")
	// ErrUploadFailed is returned when a part upload or the completion call fails
	ErrUploadFailed = errors.New("upload failed")
	// ErrDownloadFailed is returned when reading an object fails after a successful head
	ErrDownloadFailed = errors.New("download failed")
	// ErrPurgeFailed is returned when a purge could not finish and should be retried
	ErrPurgeFailed = errors.New("purge failed")
)

package vaultbox

import (
	"time"

	"github.com/google/uuid"
)

// FileMetadata is a row of the file_meta table.
type FileMetadata struct {
	ID         uuid.UUID  `json:"id"`
	InternalID string     `json:"-"`
	OwnerID    *uuid.UUID `json:"owner_id,omitempty"`
	Title      string     `json:"title"`
	Size       int64      `json:"size"`
	Format     string     `json:"format"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	IsDeleted  bool       `json:"is_deleted"`
}

// Purged reports whether the backing object has been removed and the row finalized.
func (m FileMetadata) Purged() bool {
	return m.DeletedAt != nil
}

// NewFile holds the values needed to insert a metadata row.
type NewFile struct {
	InternalID string
	OwnerID    *uuid.UUID
	Title      string
	Size       int64
	Format     string
}

type ListQuery struct {
	OwnerID     *uuid.UUID
	ShowDeleted bool
	Limit       int
	Offset      int
}

type ListResult struct {
	Items []FileMetadata `json:"data"`
	Total int            `json:"count"`
}

// UploadRequest describes an incoming upload. ContentType is the declared type and may be empty.
type UploadRequest struct {
	OwnerID     *uuid.UUID
	Filename    string
	ContentType string
}

// CompletedPart pairs a part number with the ETag the object store returned for it.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// ObjectInfo is the subset of a head response the service needs.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Headers are the response headers computed for a download.
type Headers struct {
	ContentDisposition string
	ContentLength      int64
	ContentType        string
}

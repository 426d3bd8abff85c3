package vaultbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBucket         = "test_bucket"
	DefaultChunkSize      = 5 * 1024 * 1024
	DefaultMaxFileSize    = 20 * 1024 * 1024
	DefaultCleanupTimeout = 30 * time.Second

	// PurgeJobName is the deferred job that removes the object of a soft-deleted file.
	PurgeJobName = "purge_file"
)

// MetaDataRepo defines the interface for file metadata persistence.
// Implementations must be safe for concurrent use.
//
// All methods accept a context for cancellation and timeout control.
type MetaDataRepo interface {
	// Create inserts a new row and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, f NewFile) (FileMetadata, error)

	// GetByID returns the row with the given id, soft-deleted or not.
	//
	// Returns:
	//   - error: ErrNotFound if no row has that id, or other database errors
	GetByID(ctx context.Context, id uuid.UUID) (FileMetadata, error)

	// List returns one page of rows ordered by creation time, newest first.
	// ListResult.Total counts every row matching the filter, ignoring Limit and Offset.
	List(ctx context.Context, q ListQuery) (ListResult, error)

	// SoftDelete sets is_deleted on the row. Calling it again on the same row succeeds.
	//
	// Returns:
	//   - error: ErrNotFound if no row has that id, or other database errors
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// FinalizeDelete sets deleted_at on the row and leaves is_deleted alone. It must
	// only be called after the backing object is gone. A row that already has
	// deleted_at keeps its timestamp.
	//
	// Returns:
	//   - error: ErrNotFound if no row has that id, or other database errors
	FinalizeDelete(ctx context.Context, id uuid.UUID) error

	// ListPendingPurge returns up to limit rows that are soft-deleted but not yet
	// finalized, oldest first.
	ListPendingPurge(ctx context.Context, limit int) ([]FileMetadata, error)
}

// ObjectStore defines the multipart object API the service drives.
// Implementations can use S3-compatible storage, the local filesystem, or anything
// else that can assemble numbered parts into one object.
//
// Missing objects and unknown upload sessions are reported as ErrNotFound.
type ObjectStore interface {
	// CreateMultipartUpload opens an upload session and returns its id.
	CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error)

	// UploadPart stores one part of the session and returns its ETag.
	// Part numbers start at 1.
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.Reader, size int64) (string, error)

	// CompleteMultipartUpload assembles the listed parts, in order, into the final object.
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error

	// AbortMultipartUpload discards the session and every part uploaded to it.
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error

	// HeadObject returns size and content type without fetching the body.
	HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// GetObject opens the object body. The caller must close it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// DeleteObject removes the object.
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Scheduler hands a job to a deferred executor. Delivery is at least once and the
// caller never observes the result.
type Scheduler interface {
	Enqueue(ctx context.Context, name string, args any) error
}

// PurgeArgs is the payload of a PurgeJobName job.
type PurgeArgs struct {
	FileID uuid.UUID `json:"file_id"`
}

// ServiceConfig holds configuration options for FileService.
// It is built once at startup and never modified afterwards.
type ServiceConfig struct {
	Bucket      string
	ChunkSize   int64
	MaxFileSize int64 // 0 means no limit
	// ServeDeleted allows Get and Info on rows that are soft-deleted but not yet purged.
	ServeDeleted   bool
	CleanupTimeout time.Duration // Timeout for abort and cleanup calls (default: 30s)
}

// DefaultServiceConfig returns the configuration used when nothing is overridden.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Bucket:         DefaultBucket,
		ChunkSize:      DefaultChunkSize,
		MaxFileSize:    DefaultMaxFileSize,
		ServeDeleted:   true,
		CleanupTimeout: DefaultCleanupTimeout,
	}
}

type FileService struct {
	repo      MetaDataRepo
	store     ObjectStore
	scheduler Scheduler
	cfg       ServiceConfig
}

func NewFileService(repo MetaDataRepo, store ObjectStore, scheduler Scheduler, cfg ServiceConfig) (*FileService, error) {
	if repo == nil || store == nil || scheduler == nil {
		return nil, fmt.Errorf("new file service: %w: repo, store and scheduler are required", ErrInvalidInput)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("new file service: %w: bucket cannot be empty", ErrInvalidInput)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("new file service: %w: chunk size must be positive", ErrInvalidInput)
	}
	if cfg.MaxFileSize < 0 {
		return nil, fmt.Errorf("new file service: %w: max file size cannot be negative", ErrInvalidInput)
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	return &FileService{
		repo:      repo,
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
	}, nil
}

// Config returns a copy of the service configuration.
func (s *FileService) Config() ServiceConfig {
	return s.cfg
}

// Info returns the metadata of a file without touching the object store.
func (s *FileService) Info(ctx context.Context, id uuid.UUID) (FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return FileMetadata{}, fmt.Errorf("get info: %w", err)
	}

	m, err := s.lookup(ctx, id)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("get info: %w", err)
	}

	return m, nil
}

func (s *FileService) List(ctx context.Context, q ListQuery) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", err)
	}

	if q.Limit <= 0 {
		return ListResult{}, fmt.Errorf("list files: %w: limit must be positive", ErrInvalidInput)
	}
	if q.Offset < 0 {
		return ListResult{}, fmt.Errorf("list files: %w: offset cannot be negative", ErrInvalidInput)
	}

	result, err := s.repo.List(ctx, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", err)
	}

	return result, nil
}

// Delete marks a file as deleted and schedules the purge of its object.
// It returns once the soft delete is committed; the purge runs later.
//
// A failure to enqueue the purge job is logged and not returned: the row stays
// pending and Sweep picks it up.
func (s *FileService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	if err := s.scheduler.Enqueue(ctx, PurgeJobName, PurgeArgs{FileID: id}); err != nil {
		slog.Warn("enqueue purge failed, leaving file for sweep", "file_id", id, "err", err)
	}

	return nil
}

// lookup fetches a row and applies the soft-delete visibility policy.
func (s *FileService) lookup(ctx context.Context, id uuid.UUID) (FileMetadata, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return FileMetadata{}, err
	}

	if m.IsDeleted && !s.cfg.ServeDeleted {
		return FileMetadata{}, ErrNotFound
	}

	return m, nil
}

// cleanupContext returns a context detached from the request so abort and
// compensation calls still run after the caller has gone away.
func (s *FileService) cleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.CleanupTimeout)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

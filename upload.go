package vaultbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Upload streams content into a new multipart object and records its metadata.
//
// The method performs the following steps:
//  1. Resolves the content type (declared, else from the filename, else octet-stream)
//  2. Derives the object key from a fresh UUID and the content type's extension
//  3. Opens a multipart upload session
//  4. Reads content in ChunkSize chunks and uploads each as the next part,
//     refusing to send any part that would push the total past MaxFileSize
//  5. Completes the upload with the ordered part list
//  6. Creates the metadata row
//
// Any failure in steps 4-5, including a read error from content or a cancelled
// context, aborts the upload session before the error is returned. The abort runs on
// a background context with the configured cleanup timeout so it completes even when
// ctx is already done. If step 6 fails the committed object is deleted, so a row
// exists exactly when its object does.
//
// Error types returned:
//   - ErrInvalidInput: empty filename, nil content, or a stream with no bytes
//   - ErrUploadTooLarge: content is larger than MaxFileSize
//   - ErrUploadFailed: the session could not be opened, a part or completion failed,
//     or reading content failed
//   - Wrapped metadata errors: the row could not be inserted
func (s *FileService) Upload(ctx context.Context, req UploadRequest, content io.Reader) (FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return FileMetadata{}, fmt.Errorf("upload: %w", err)
	}

	if req.Filename == "" {
		return FileMetadata{}, fmt.Errorf("upload: %w: filename cannot be empty", ErrInvalidInput)
	}

	if content == nil {
		return FileMetadata{}, fmt.Errorf("upload: %w: content cannot be nil", ErrInvalidInput)
	}

	contentType := ResolveContentType(req.ContentType, req.Filename)
	key := ObjectKey(uuid.New(), contentType)

	uploadID, err := s.store.CreateMultipartUpload(ctx, s.cfg.Bucket, key, contentType)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("upload %s: %w: create session: %w", key, ErrUploadFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			s.abort(key, uploadID)
		}
	}()

	parts, size, err := s.uploadParts(ctx, key, uploadID, content)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("upload %s: %w", key, err)
	}

	if err = s.store.CompleteMultipartUpload(ctx, s.cfg.Bucket, key, uploadID, parts); err != nil {
		return FileMetadata{}, fmt.Errorf("upload %s: %w: complete: %w", key, ErrUploadFailed, err)
	}
	committed = true

	m, createErr := s.repo.Create(ctx, NewFile{
		InternalID: key,
		OwnerID:    req.OwnerID,
		Title:      req.Filename,
		Size:       size,
		Format:     contentType,
	})
	if createErr != nil {
		cleanupCtx, cancel := s.cleanupContext()
		defer cancel()

		if delErr := s.store.DeleteObject(cleanupCtx, s.cfg.Bucket, key); delErr != nil && !isNotFound(delErr) {
			return FileMetadata{}, fmt.Errorf("upload %s: create metadata failed (%w) and cleanup failed: %w", key, createErr, delErr)
		}
		return FileMetadata{}, fmt.Errorf("upload %s: create metadata failed: %w", key, createErr)
	}

	return m, nil
}

// uploadParts sends content as numbered parts and returns them in upload order
// together with the number of bytes read.
func (s *FileService) uploadParts(ctx context.Context, key, uploadID string, content io.Reader) ([]CompletedPart, int64, error) {
	buf := make([]byte, s.cfg.ChunkSize)
	parts := make([]CompletedPart, 0, 4)
	var size int64

	for partNumber := 1; ; partNumber++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}

		n, readErr := io.ReadFull(content, buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: read chunk %d: %w", ErrUploadFailed, partNumber, readErr)
		}

		if n > 0 {
			size += int64(n)
			if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
				return nil, 0, fmt.Errorf("%w: exceeds %d bytes", ErrUploadTooLarge, s.cfg.MaxFileSize)
			}

			etag, err := s.store.UploadPart(ctx, s.cfg.Bucket, key, uploadID, partNumber, bytes.NewReader(buf[:n]), int64(n))
			if err != nil {
				return nil, 0, fmt.Errorf("%w: part %d: %w", ErrUploadFailed, partNumber, err)
			}
			parts = append(parts, CompletedPart{PartNumber: partNumber, ETag: etag})
		}

		// A short chunk means the stream is exhausted.
		if readErr != nil {
			break
		}
	}

	if len(parts) == 0 {
		return nil, 0, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	return parts, size, nil
}

func (s *FileService) abort(key, uploadID string) {
	ctx, cancel := s.cleanupContext()
	defer cancel()

	if err := s.store.AbortMultipartUpload(ctx, s.cfg.Bucket, key, uploadID); err != nil && !isNotFound(err) {
		slog.Warn("abort multipart upload failed", "key", key, "upload_id", uploadID, "err", err)
	}
}

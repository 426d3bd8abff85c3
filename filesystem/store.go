// Package filesystem provides a local multipart object store for vaultbox.
// Parts are staged per upload session, completion assembles them into a temp
// file that is renamed into place, and every part carries an MD5 etag the
// way S3 does.
package filesystem

import (
	"context"
	"crypto/md5" //nolint:gosec // etags, not security
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sagarc03/vaultbox"
)

const (
	uploadsDir = ".uploads"
	metaDir    = ".meta"
	tmpDir     = ".tmp"

	sessionFile = "session.json"
	maxParts    = 10000
)

var (
	errInvalidName = errors.New("invalid bucket or key")
	errInvalidPart = errors.New("invalid part")
)

// Store keeps objects under <root>/<bucket>/<key>.
type Store struct {
	root *os.Root

	// mu serializes completion and abort of one session against each other.
	mu sync.Mutex
}

type session struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// NewFileStorage creates a Store on root.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Open creates dir if needed and returns a Store rooted at it. Close releases the root.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open filesystem store: %w", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open filesystem store: %w", err)
	}

	return NewFileStorage(root), nil
}

// Close releases the underlying root.
func (s *Store) Close() error {
	return s.root.Close()
}

// EnsureBucket creates the bucket directory.
func (s *Store) EnsureBucket(bucket string) error {
	if !validBucket(bucket) {
		return fmt.Errorf("ensure bucket %q: %w", bucket, errInvalidName)
	}
	if err := s.root.MkdirAll(bucket, 0o755); err != nil {
		return fmt.Errorf("ensure bucket %q: %w", bucket, err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !validBucket(bucket) || !validKey(key) {
		return "", fmt.Errorf("create multipart upload: %w", errInvalidName)
	}

	uploadID := uuid.NewString()
	dir := sessionDir(uploadID)

	if err := s.root.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}

	data, err := json.Marshal(session{Bucket: bucket, Key: key, ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}

	if err := s.root.WriteFile(filepath.Join(dir, sessionFile), data, 0o644); err != nil {
		_ = s.root.RemoveAll(dir)
		return "", fmt.Errorf("create multipart upload: %w", err)
	}

	return uploadID, nil
}

// UploadPart writes the part to a temp file and renames it into the session, so a
// retried part replaces the previous attempt.
func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if partNumber < 1 || partNumber > maxParts {
		return "", fmt.Errorf("upload part %d: %w: part number out of range", partNumber, errInvalidPart)
	}

	if _, err := s.loadSession(bucket, key, uploadID); err != nil {
		return "", fmt.Errorf("upload part %d: %w", partNumber, err)
	}

	dir := sessionDir(uploadID)
	tmpName := filepath.Join(dir, ".t"+uuid.NewString())

	t, err := s.root.Create(tmpName)
	if err != nil {
		return "", fmt.Errorf("upload part %d: create temp file: %w", partNumber, err)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close part file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				slog.Warn("failed to remove part temp file", "err", rmErr)
			}
		}
	}()

	h := md5.New() //nolint:gosec // etags, not security
	written, err := io.Copy(io.MultiWriter(h, t), &ctxReader{ctx: ctx, r: body})
	if err != nil {
		return "", fmt.Errorf("upload part %d: copy: %w", partNumber, err)
	}

	if written != size {
		return "", fmt.Errorf("upload part %d: %w: got %d bytes, expected %d", partNumber, errInvalidPart, written, size)
	}

	if err := t.Sync(); err != nil {
		return "", fmt.Errorf("upload part %d: sync: %w", partNumber, err)
	}

	if err := s.root.Rename(tmpName, partPath(uploadID, partNumber)); err != nil {
		return "", fmt.Errorf("upload part %d: rename: %w", partNumber, err)
	}

	success = true
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CompleteMultipartUpload concatenates the listed parts, checking each etag, and
// renames the result into place. Parts must be listed in ascending order.
func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []vaultbox.CompletedPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(parts) == 0 {
		return fmt.Errorf("complete multipart upload: %w: no parts", errInvalidPart)
	}

	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return fmt.Errorf("complete multipart upload: %w: parts out of order", errInvalidPart)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadSession(bucket, key, uploadID)
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	if err := s.root.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	tmpName := filepath.Join(tmpDir, uuid.NewString())
	t, err := s.root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("complete multipart upload: create temp file: %w", err)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close assembled file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				slog.Warn("failed to remove assembled temp file", "err", rmErr)
			}
		}
	}()

	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.appendPart(t, uploadID, p); err != nil {
			return fmt.Errorf("complete multipart upload: %w", err)
		}
	}

	if err := t.Sync(); err != nil {
		return fmt.Errorf("complete multipart upload: sync: %w", err)
	}

	target := objectPath(bucket, key)
	if dir := filepath.Dir(target); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("complete multipart upload: %w", err)
		}
	}

	if err := s.writeContentType(bucket, key, sess.ContentType); err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	if err := s.root.Rename(tmpName, target); err != nil {
		return fmt.Errorf("complete multipart upload: rename: %w", err)
	}
	success = true

	if err := s.root.RemoveAll(sessionDir(uploadID)); err != nil {
		slog.Warn("failed to remove upload session", "upload_id", uploadID, "err", err)
	}

	return nil
}

func (s *Store) appendPart(w io.Writer, uploadID string, p vaultbox.CompletedPart) error {
	f, err := s.root.Open(partPath(uploadID, p.PartNumber))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: part %d was not uploaded", errInvalidPart, p.PartNumber)
		}
		return fmt.Errorf("open part %d: %w", p.PartNumber, err)
	}
	defer func() { _ = f.Close() }()

	h := md5.New() //nolint:gosec // etags, not security
	if _, err := io.Copy(io.MultiWriter(w, h), f); err != nil {
		return fmt.Errorf("copy part %d: %w", p.PartNumber, err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != strings.Trim(p.ETag, `"`) {
		return fmt.Errorf("%w: part %d etag mismatch", errInvalidPart, p.PartNumber)
	}

	return nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadSession(bucket, key, uploadID); err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}

	if err := s.root.RemoveAll(sessionDir(uploadID)); err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}

	return nil
}

// HeadObject returns the object size and the content type recorded at upload.
func (s *Store) HeadObject(ctx context.Context, bucket, key string) (vaultbox.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return vaultbox.ObjectInfo{}, err
	}

	if !validBucket(bucket) || !validKey(key) {
		return vaultbox.ObjectInfo{}, fmt.Errorf("head object: %w", errInvalidName)
	}

	info, err := s.root.Stat(objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return vaultbox.ObjectInfo{}, vaultbox.ErrNotFound
		}
		return vaultbox.ObjectInfo{}, fmt.Errorf("head object: %w", err)
	}

	return vaultbox.ObjectInfo{Size: info.Size(), ContentType: s.readContentType(bucket, key)}, nil
}

// GetObject opens a file for reading. Returns vaultbox.ErrNotFound if the file does not exist.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !validBucket(bucket) || !validKey(key) {
		return nil, fmt.Errorf("get object: %w", errInvalidName)
	}

	f, err := s.root.Open(objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, vaultbox.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, nil
}

// DeleteObject removes a file. Returns vaultbox.ErrNotFound if the file does not exist.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !validBucket(bucket) || !validKey(key) {
		return fmt.Errorf("delete object: %w", errInvalidName)
	}

	if err := s.root.Remove(objectPath(bucket, key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return vaultbox.ErrNotFound
		}
		return fmt.Errorf("could not delete file: %w", err)
	}

	if err := s.root.Remove(contentTypePath(bucket, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove content type record", "bucket", bucket, "key", key, "err", err)
	}

	return nil
}

func (s *Store) loadSession(bucket, key, uploadID string) (session, error) {
	if err := uuid.Validate(uploadID); err != nil {
		return session{}, fmt.Errorf("upload %q: %w", uploadID, vaultbox.ErrNotFound)
	}

	data, err := s.root.ReadFile(filepath.Join(sessionDir(uploadID), sessionFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return session{}, fmt.Errorf("upload %s: %w", uploadID, vaultbox.ErrNotFound)
		}
		return session{}, fmt.Errorf("read session: %w", err)
	}

	var sess session
	if err := json.Unmarshal(data, &sess); err != nil {
		return session{}, fmt.Errorf("decode session: %w", err)
	}

	if sess.Bucket != bucket || sess.Key != key {
		return session{}, fmt.Errorf("upload %s: %w: session belongs to %s/%s", uploadID, vaultbox.ErrNotFound, sess.Bucket, sess.Key)
	}

	return sess, nil
}

func (s *Store) writeContentType(bucket, key, contentType string) error {
	p := contentTypePath(bucket, key)
	if err := s.root.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("write content type: %w", err)
	}
	if err := s.root.WriteFile(p, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("write content type: %w", err)
	}
	return nil
}

// readContentType falls back to the key's extension when nothing was recorded.
func (s *Store) readContentType(bucket, key string) string {
	data, err := s.root.ReadFile(contentTypePath(bucket, key))
	if err == nil && len(data) > 0 {
		return string(data)
	}
	return vaultbox.ResolveContentType("", key)
}

func sessionDir(uploadID string) string {
	return filepath.Join(uploadsDir, uploadID)
}

func partPath(uploadID string, partNumber int) string {
	return filepath.Join(sessionDir(uploadID), strconv.Itoa(partNumber))
}

func objectPath(bucket, key string) string {
	return filepath.Join(bucket, filepath.FromSlash(key))
}

func contentTypePath(bucket, key string) string {
	return filepath.Join(metaDir, bucket, filepath.FromSlash(key))
}

// validBucket rejects names that would collide with the store's own directories.
func validBucket(bucket string) bool {
	return bucket != "" &&
		!strings.HasPrefix(bucket, ".") &&
		!strings.ContainsAny(bucket, `/\`)
}

func validKey(key string) bool {
	return key != "" && filepath.IsLocal(filepath.FromSlash(key))
}

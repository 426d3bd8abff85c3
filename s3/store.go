// Package s3 implements vaultbox.ObjectStore on S3-compatible storage using minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sagarc03/vaultbox"
)

// Config holds connection settings for an S3-compatible endpoint.
type Config struct {
	// Endpoint is "host:port" or an http(s) URL without a path.
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// CreateBucket creates the bucket at startup when it is missing.
	CreateBucket bool `mapstructure:"create_bucket"`
}

// Store drives multipart uploads through the low level minio Core API so part
// numbering and session lifetime stay with the caller.
type Store struct {
	core *minio.Core
}

// New builds a Store for cfg. It does not contact the endpoint.
func New(cfg Config) (*Store, error) {
	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("new s3 store: %w", err)
	}

	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("new s3 store: %w", err)
	}

	return &Store{core: core}, nil
}

// EnsureBucket checks that bucket exists, creating it when create is set.
func (s *Store) EnsureBucket(ctx context.Context, bucket, region string, create bool) error {
	exists, err := s.core.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if !create {
		return fmt.Errorf("ensure bucket %s: bucket does not exist", bucket)
	}

	if err := s.core.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		// Another instance may have created it first.
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("ensure bucket %s: create: %w", bucket, err)
	}

	return nil
}

// Ping checks that the endpoint answers and the bucket is reachable.
func (s *Store) Ping(ctx context.Context, bucket string) error {
	if _, err := s.core.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("ping s3: %w", err)
	}
	return nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", translate(err))
	}
	return uploadID, nil
}

func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	part, err := s.core.PutObjectPart(ctx, bucket, key, uploadID, partNumber, body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w", partNumber, translate(err))
	}
	return part.ETag, nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []vaultbox.CompletedPart) error {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	if _, err := s.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("complete multipart upload: %w", translate(err))
	}
	return nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return fmt.Errorf("abort multipart upload: %w", translate(err))
	}
	return nil
}

func (s *Store) HeadObject(ctx context.Context, bucket, key string) (vaultbox.ObjectInfo, error) {
	info, err := s.core.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return vaultbox.ObjectInfo{}, fmt.Errorf("head object: %w", translate(err))
	}
	return vaultbox.ObjectInfo{Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, _, _, err := s.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", translate(err))
	}
	return body, nil
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := s.core.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", translate(err))
	}
	return nil
}

// translate maps missing keys and unknown upload sessions to vaultbox.ErrNotFound.
func translate(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NoSuchUpload":
		return fmt.Errorf("%w: %w", vaultbox.ErrNotFound, err)
	case resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return fmt.Errorf("%w: %w", vaultbox.ErrNotFound, err)
	}
	return err
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

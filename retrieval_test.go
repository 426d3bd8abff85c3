package vaultbox_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/vaultbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func storedFile(id uuid.UUID) vaultbox.FileMetadata {
	return vaultbox.FileMetadata{
		ID:         id,
		InternalID: id.String() + ".txt",
		Title:      "hello.txt",
		Size:       11,
		Format:     "text/plain",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestFileService_Get(t *testing.T) {
	t.Run("success - headers up front, body on first read", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).
			Return(vaultbox.ObjectInfo{Size: 11, ContentType: "text/plain"}, nil)

		body := &trackingBody{Reader: strings.NewReader("hello world")}
		store.On("GetObject", ctx, testBucket, m.InternalID).Return(body, nil)

		dl, err := service.Get(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, m, dl.Metadata)
		assert.Equal(t, int64(11), dl.Headers.ContentLength)
		assert.Equal(t, "text/plain", dl.Headers.ContentType)
		assert.Equal(t, "attachment; filename*=UTF-8''hello.txt", dl.Headers.ContentDisposition)

		store.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)

		data, err := io.ReadAll(dl.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		require.NoError(t, dl.Body.Close())
		assert.True(t, body.closed)
		store.AssertNumberOfCalls(t, "GetObject", 1)
	})

	t.Run("success - close without read never fetches", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{Size: 11}, nil)

		dl, err := service.Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, dl.Body.Close())
		require.NoError(t, dl.Body.Close())

		_, err = dl.Body.Read(make([]byte, 1))
		assert.Error(t, err)

		store.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("success - each call fetches again", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{Size: 2}, nil)
		store.On("GetObject", ctx, testBucket, m.InternalID).
			Return(&trackingBody{Reader: strings.NewReader("hi")}, nil).Once()
		store.On("GetObject", ctx, testBucket, m.InternalID).
			Return(&trackingBody{Reader: strings.NewReader("hi")}, nil).Once()

		for range 2 {
			dl, err := service.Get(ctx, id)
			require.NoError(t, err)
			data, err := io.ReadAll(dl.Body)
			require.NoError(t, err)
			assert.Equal(t, "hi", string(data))
			dl.Body.Close()
		}

		store.AssertNumberOfCalls(t, "GetObject", 2)
	})

	t.Run("success - missing content type falls back to octet-stream", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{Size: 11}, nil)

		dl, err := service.Get(ctx, id)
		require.NoError(t, err)
		defer dl.Body.Close()

		assert.Equal(t, vaultbox.OctetStream, dl.Headers.ContentType)
	})

	t.Run("error - metadata not found", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()

		repo.On("GetByID", ctx, id).Return(vaultbox.FileMetadata{}, vaultbox.ErrNotFound)

		_, err := service.Get(ctx, id)
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)

		store.AssertNotCalled(t, "HeadObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("error - row without object key", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)
		m.InternalID = ""

		repo.On("GetByID", ctx, id).Return(m, nil)

		_, err := service.Get(ctx, id)
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)

		store.AssertNotCalled(t, "HeadObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("error - object missing", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{}, vaultbox.ErrNotFound)

		_, err := service.Get(ctx, id)
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)
	})

	t.Run("error - head failure is not reported as not found", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		headErr := errors.New("503 slow down")
		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{}, headErr)

		_, err := service.Get(ctx, id)
		assert.ErrorIs(t, err, headErr)
		assert.NotErrorIs(t, err, vaultbox.ErrNotFound)
	})

	t.Run("error - fetch failure surfaces on read", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		fetchErr := errors.New("connection refused")
		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{Size: 11}, nil)
		store.On("GetObject", ctx, testBucket, m.InternalID).Return(nil, fetchErr)

		dl, err := service.Get(ctx, id)
		require.NoError(t, err)
		defer dl.Body.Close()

		_, err = io.ReadAll(dl.Body)
		assert.ErrorIs(t, err, vaultbox.ErrDownloadFailed)
		assert.ErrorIs(t, err, fetchErr)

		// The failure is sticky and the fetch is not retried.
		_, err = dl.Body.Read(make([]byte, 1))
		assert.ErrorIs(t, err, vaultbox.ErrDownloadFailed)
		store.AssertNumberOfCalls(t, "GetObject", 1)
	})

	t.Run("error - read failure mid body", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		readErr := errors.New("unexpected reset")
		repo.On("GetByID", ctx, id).Return(m, nil)
		store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{Size: 11}, nil)
		store.On("GetObject", ctx, testBucket, m.InternalID).
			Return(&trackingBody{Reader: io.MultiReader(strings.NewReader("hello"), iotest.ErrReader(readErr))}, nil)

		dl, err := service.Get(ctx, id)
		require.NoError(t, err)
		defer dl.Body.Close()

		data, err := io.ReadAll(dl.Body)
		assert.Equal(t, "hello", string(data))
		assert.ErrorIs(t, err, vaultbox.ErrDownloadFailed)
		assert.ErrorIs(t, err, readErr)
	})

	t.Run("soft-deleted file", func(t *testing.T) {
		id := uuid.New()
		m := storedFile(id)
		m.IsDeleted = true

		t.Run("served when enabled", func(t *testing.T) {
			cfg := testConfig()
			cfg.ServeDeleted = true
			service, repo, store, _ := NewFileService(t, cfg)
			ctx := context.Background()

			repo.On("GetByID", ctx, id).Return(m, nil)
			store.On("HeadObject", ctx, testBucket, m.InternalID).Return(vaultbox.ObjectInfo{Size: 11}, nil)

			dl, err := service.Get(ctx, id)
			require.NoError(t, err)
			dl.Body.Close()
		})

		t.Run("hidden when disabled", func(t *testing.T) {
			cfg := testConfig()
			cfg.ServeDeleted = false
			service, repo, store, _ := NewFileService(t, cfg)
			ctx := context.Background()

			repo.On("GetByID", ctx, id).Return(m, nil)

			_, err := service.Get(ctx, id)
			assert.ErrorIs(t, err, vaultbox.ErrNotFound)

			store.AssertNotCalled(t, "HeadObject", mock.Anything, mock.Anything, mock.Anything)
		})
	})
}

func TestFileService_Info(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		service, repo, store, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()
		m := storedFile(id)

		repo.On("GetByID", ctx, id).Return(m, nil)

		got, err := service.Info(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, m, got)

		store.AssertNotCalled(t, "HeadObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("error - not found", func(t *testing.T) {
		service, repo, _, _ := NewFileService(t, testConfig())
		ctx := context.Background()
		id := uuid.New()

		repo.On("GetByID", ctx, id).Return(vaultbox.FileMetadata{}, vaultbox.ErrNotFound)

		_, err := service.Info(ctx, id)
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)
	})

	t.Run("soft-deleted row follows visibility setting", func(t *testing.T) {
		id := uuid.New()
		m := storedFile(id)
		m.IsDeleted = true

		for _, serve := range []bool{true, false} {
			cfg := testConfig()
			cfg.ServeDeleted = serve
			service, repo, _, _ := NewFileService(t, cfg)
			ctx := context.Background()

			repo.On("GetByID", ctx, id).Return(m, nil)

			got, err := service.Info(ctx, id)
			if serve {
				require.NoError(t, err)
				assert.True(t, got.IsDeleted)
			} else {
				assert.ErrorIs(t, err, vaultbox.ErrNotFound)
			}
		}
	})
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{"plain ascii", "report.pdf", "attachment; filename*=UTF-8''report.pdf"},
		{"space", "my file.txt", "attachment; filename*=UTF-8''my%20file.txt"},
		{"unicode", "résumé.txt", "attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.txt"},
		{"quote and semicolon", `a"b;c.txt`, "attachment; filename*=UTF-8''a%22b%3Bc.txt"},
		{"attr chars kept", "a-b_c~d!e.txt", "attachment; filename*=UTF-8''a-b_c~d!e.txt"},
		{"empty", "", "attachment; filename*=UTF-8''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, vaultbox.ContentDisposition(tt.filename))
		})
	}
}

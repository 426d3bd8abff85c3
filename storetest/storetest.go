// Package storetest holds the behaviour tests every vaultbox.ObjectStore backend must pass.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sagarc03/vaultbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MinPartSize is the smallest non-final part S3 accepts.
const MinPartSize = 5 * 1024 * 1024

// Factory returns a store and a bucket that exists in it.
type Factory func(t *testing.T) (vaultbox.ObjectStore, string)

// Run exercises multipart and object semantics against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("multipart round trip", func(t *testing.T) { testRoundTrip(t, newStore) })
	t.Run("abort discards session", func(t *testing.T) { testAbort(t, newStore) })
	t.Run("missing object", func(t *testing.T) { testMissing(t, newStore) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("complete with wrong etag", func(t *testing.T) { testBadETag(t, newStore) })
}

// Put uploads content as a single part object.
func Put(t *testing.T, store vaultbox.ObjectStore, bucket, key, contentType string, content []byte) {
	t.Helper()
	ctx := context.Background()

	uploadID, err := store.CreateMultipartUpload(ctx, bucket, key, contentType)
	require.NoError(t, err)

	etag, err := store.UploadPart(ctx, bucket, key, uploadID, 1, bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	err = store.CompleteMultipartUpload(ctx, bucket, key, uploadID, []vaultbox.CompletedPart{{PartNumber: 1, ETag: etag}})
	require.NoError(t, err)
}

func testRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store, bucket := newStore(t)
	key := uuid.NewString() + ".bin"

	first := bytes.Repeat([]byte{'a'}, MinPartSize)
	second := []byte("tail")

	uploadID, err := store.CreateMultipartUpload(ctx, bucket, key, "application/octet-stream")
	require.NoError(t, err)
	require.NotEmpty(t, uploadID)

	etag1, err := store.UploadPart(ctx, bucket, key, uploadID, 1, bytes.NewReader(first), int64(len(first)))
	require.NoError(t, err)
	etag2, err := store.UploadPart(ctx, bucket, key, uploadID, 2, bytes.NewReader(second), int64(len(second)))
	require.NoError(t, err)

	_, err = store.HeadObject(ctx, bucket, key)
	assert.ErrorIs(t, err, vaultbox.ErrNotFound, "object must not be visible before completion")

	err = store.CompleteMultipartUpload(ctx, bucket, key, uploadID, []vaultbox.CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.NoError(t, err)

	info, err := store.HeadObject(ctx, bucket, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(first)+len(second)), info.Size)
	assert.Equal(t, "application/octet-stream", info.ContentType)

	body, err := store.GetObject(ctx, bucket, key)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), data)
}

func testAbort(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store, bucket := newStore(t)
	key := uuid.NewString() + ".txt"

	uploadID, err := store.CreateMultipartUpload(ctx, bucket, key, "text/plain")
	require.NoError(t, err)

	_, err = store.UploadPart(ctx, bucket, key, uploadID, 1, bytes.NewReader([]byte("abc")), 3)
	require.NoError(t, err)

	require.NoError(t, store.AbortMultipartUpload(ctx, bucket, key, uploadID))

	_, err = store.HeadObject(ctx, bucket, key)
	assert.ErrorIs(t, err, vaultbox.ErrNotFound)

	_, err = store.UploadPart(ctx, bucket, key, uploadID, 2, bytes.NewReader([]byte("def")), 3)
	assert.Error(t, err, "aborted session must reject parts")
}

func testMissing(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store, bucket := newStore(t)
	key := uuid.NewString()

	_, err := store.HeadObject(ctx, bucket, key)
	assert.ErrorIs(t, err, vaultbox.ErrNotFound)

	_, err = store.GetObject(ctx, bucket, key)
	assert.ErrorIs(t, err, vaultbox.ErrNotFound)

	err = store.DeleteObject(ctx, bucket, key)
	if err != nil {
		assert.ErrorIs(t, err, vaultbox.ErrNotFound)
	}
}

func testDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store, bucket := newStore(t)
	key := uuid.NewString() + ".txt"

	Put(t, store, bucket, key, "text/plain", []byte("bye"))

	require.NoError(t, store.DeleteObject(ctx, bucket, key))

	_, err := store.HeadObject(ctx, bucket, key)
	assert.ErrorIs(t, err, vaultbox.ErrNotFound)

	err = store.DeleteObject(ctx, bucket, key)
	assert.True(t, err == nil || errors.Is(err, vaultbox.ErrNotFound), "second delete: %v", err)
}

func testBadETag(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store, bucket := newStore(t)
	key := uuid.NewString() + ".txt"

	uploadID, err := store.CreateMultipartUpload(ctx, bucket, key, "text/plain")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.AbortMultipartUpload(context.Background(), bucket, key, uploadID) })

	_, err = store.UploadPart(ctx, bucket, key, uploadID, 1, bytes.NewReader([]byte("abc")), 3)
	require.NoError(t, err)

	err = store.CompleteMultipartUpload(ctx, bucket, key, uploadID, []vaultbox.CompletedPart{
		{PartNumber: 1, ETag: "0123456789abcdef0123456789abcdef"},
	})
	assert.Error(t, err)

	_, err = store.HeadObject(ctx, bucket, key)
	assert.ErrorIs(t, err, vaultbox.ErrNotFound)
}

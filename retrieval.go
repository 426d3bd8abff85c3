package vaultbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Download is the result of Get: headers computed up front and a body that is
// fetched from the object store on first Read.
type Download struct {
	Metadata FileMetadata
	Headers  Headers
	// Body is single pass. Callers must Close it, even when they never read from it.
	Body io.ReadCloser
}

// Get resolves a file for download.
//
// The metadata row and a head request against the object store are done eagerly,
// so a missing row, a row without an object key, or a missing object all fail here
// with ErrNotFound. The object body itself is only requested when Body is first read;
// failures from that point on are reported as ErrDownloadFailed by Body.Read.
// Calling Get again issues a fresh fetch.
func (s *FileService) Get(ctx context.Context, id uuid.UUID) (Download, error) {
	if err := ctx.Err(); err != nil {
		return Download{}, fmt.Errorf("get file: %w", err)
	}

	m, err := s.lookup(ctx, id)
	if err != nil {
		return Download{}, fmt.Errorf("get file: %w", err)
	}

	if m.InternalID == "" {
		return Download{}, fmt.Errorf("get file %s: %w: no object key", id, ErrNotFound)
	}

	info, err := s.store.HeadObject(ctx, s.cfg.Bucket, m.InternalID)
	if err != nil {
		if isNotFound(err) {
			return Download{}, fmt.Errorf("get file %s: %w: object missing", id, ErrNotFound)
		}
		return Download{}, fmt.Errorf("get file %s: head object: %w", id, err)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = OctetStream
	}

	bucket, key := s.cfg.Bucket, m.InternalID
	body := &lazyBody{
		open: func() (io.ReadCloser, error) {
			return s.store.GetObject(ctx, bucket, key)
		},
	}

	return Download{
		Metadata: m,
		Headers: Headers{
			ContentDisposition: ContentDisposition(m.Title),
			ContentLength:      info.Size,
			ContentType:        contentType,
		},
		Body: body,
	}, nil
}

var errBodyClosed = errors.New("read on closed body")

// lazyBody defers GetObject until the first Read.
type lazyBody struct {
	open func() (io.ReadCloser, error)

	mu     sync.Mutex
	rc     io.ReadCloser
	err    error
	closed bool
}

func (b *lazyBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errBodyClosed
	}
	if b.err != nil {
		return 0, b.err
	}

	if b.rc == nil {
		rc, err := b.open()
		if err != nil {
			b.err = fmt.Errorf("%w: %w", ErrDownloadFailed, err)
			return 0, b.err
		}
		b.rc = rc
	}

	n, err := b.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		b.err = fmt.Errorf("%w: %w", ErrDownloadFailed, err)
		return n, b.err
	}
	return n, err
}

func (b *lazyBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.rc == nil {
		return nil
	}
	return b.rc.Close()
}

// ContentDisposition builds an attachment disposition with the filename
// percent-encoded as an RFC 5987 ext-value.
func ContentDisposition(filename string) string {
	const hexDigits = "0123456789ABCDEF"

	var b strings.Builder
	b.WriteString("attachment; filename*=UTF-8''")
	for i := 0; i < len(filename); i++ {
		c := filename[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

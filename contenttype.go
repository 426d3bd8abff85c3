package vaultbox

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const OctetStream = "application/octet-stream"

// knownTypes pins the extension used for common content types so object keys do not
// depend on the host's mime.types file.
var knownTypes = map[string]string{
	OctetStream:              ".bin",
	"text/plain":             ".txt",
	"text/html":              ".html",
	"text/css":               ".css",
	"text/csv":               ".csv",
	"text/javascript":        ".js",
	"text/markdown":          ".md",
	"application/json":       ".json",
	"application/pdf":        ".pdf",
	"application/xml":        ".xml",
	"application/zip":        ".zip",
	"application/gzip":       ".gz",
	"application/x-tar":      ".tar",
	"application/javascript": ".js",
	"image/png":              ".png",
	"image/jpeg":             ".jpg",
	"image/gif":              ".gif",
	"image/webp":             ".webp",
	"image/svg+xml":          ".svg",
	"audio/mpeg":             ".mp3",
	"video/mp4":              ".mp4",
}

var knownExtensions = func() map[string]string {
	m := make(map[string]string, len(knownTypes)+2)
	for typ, ext := range knownTypes {
		if _, ok := m[ext]; !ok || typ == "text/javascript" {
			m[ext] = typ
		}
	}
	m[".jpeg"] = "image/jpeg"
	m[".htm"] = "text/html"
	return m
}()

// ResolveContentType returns the declared type when present, otherwise the type
// implied by the filename extension, otherwise OctetStream.
func ResolveContentType(declared, filename string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return OctetStream
	}

	if typ, ok := knownExtensions[ext]; ok {
		return typ
	}

	if typ := mime.TypeByExtension(ext); typ != "" {
		if mediaType, _, err := mime.ParseMediaType(typ); err == nil {
			return mediaType
		}
		return typ
	}

	return OctetStream
}

// ExtensionFor returns the file extension for a content type, including the dot.
// Unknown types yield an empty string.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}

	if ext, ok := knownTypes[mediaType]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// ObjectKey derives the object store key for a new upload.
func ObjectKey(id uuid.UUID, contentType string) string {
	if contentType == "" {
		return id.String()
	}
	return id.String() + ExtensionFor(contentType)
}

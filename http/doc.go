// Package http exposes the vaultbox file service over HTTP.
//
// # Routes
//
//	GET    /api/files            list files (owner_id, show_deleted, limit, offset)
//	POST   /api/files?owner_id=  upload the "file" field of a multipart form
//	GET    /api/files/{id}       stream the file with Content-Disposition
//	GET    /api/files/{id}/info  file metadata as JSON
//	DELETE /api/files/{id}       soft delete and schedule the purge
//	GET    /healthz              pings the metadata store
//	GET    /metrics              Prometheus metrics
//
// Uploads are read straight from the request body part by part; nothing is
// buffered to disk. Downloads read the first bytes of the object before writing
// the status line, so a storage failure at that point is still reported as 502.
//
// # Errors
//
// Errors are JSON bodies of the form {"error": code, "message": text}. Service
// errors map to status codes as follows, first match wins:
//
//	context.Canceled            499
//	vaultbox.ErrNotFound        404
//	vaultbox.ErrInvalidInput    400
//	vaultbox.ErrUploadTooLarge  413
//	vaultbox.ErrUploadFailed    502
//	vaultbox.ErrDownloadFailed  502
//	anything else               500
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{Health: db}, service)
//	srv := &nethttp.Server{Addr: ":8080", Handler: handler.Router()}
package http

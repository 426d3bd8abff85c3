// Package vaultbox provides a metadata-backed file storage service: uploads are
// streamed into multipart objects in an object store, metadata lives in a relational
// store, and deletes are soft with an asynchronous purge.
//
// # Key Components
//
//   - FileService: Upload, Get, Info, List, Delete, Reconcile and Sweep
//   - MetaDataRepo: Interface for metadata persistence (PostgreSQL, SQLite)
//   - ObjectStore: Interface for multipart object storage (S3-compatible, filesystem)
//   - Scheduler: Interface to the deferred job executor that runs purges
//
// # Consistency
//
// A metadata row is created only after its object is committed, and the object is
// removed again if the row cannot be written. Every failed upload aborts its
// multipart session, including uploads whose input stream fails or whose context is
// cancelled.
//
// Deletes are two phase. Delete marks the row (is_deleted) and enqueues a
// PurgeJobName job; Reconcile, run by the job, deletes the object and only then sets
// deleted_at. Reconcile is a no-op on rows that are missing, not marked, or already
// finalized, so at-least-once delivery is safe. Sweep reconciles anything left behind.
//
// # Example Usage
//
//	service, err := vaultbox.NewFileService(repo, store, scheduler, vaultbox.DefaultServiceConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Upload a file
//	meta, err := service.Upload(ctx, vaultbox.UploadRequest{Filename: "report.pdf"}, reader)
//
//	// Download it
//	dl, err := service.Get(ctx, meta.ID)
//	defer dl.Body.Close()
//
// See the http package for the REST API, the database package for metadata backends,
// the s3 and filesystem packages for object stores and the jobs package for the
// purge executor.
package vaultbox

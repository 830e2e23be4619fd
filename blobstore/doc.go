// Package blobstore provides the durable object storage abstraction.
//
// Raw media, model weights and durable index segments all live in a
// BlobStore. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3
//
// # Usage
//
//	url, err := blobstore.PutObject(ctx, store, "cat.jpg", data)
//	raw, err := blobstore.ReadAll(ctx, store, "cat.jpg")
package blobstore

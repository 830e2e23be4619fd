// Package minio provides a BlobStore implementation using the MinIO client.
//
// Uploaded media is stored under the configured bucket and served back by
// URL, so EnsureBucket attaches an anonymous read policy when it creates the
// bucket.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "media", "", "http://localhost:9000")
//	if err := store.EnsureBucket(ctx); err != nil {
//	    log.Fatal(err)
//	}
package minio

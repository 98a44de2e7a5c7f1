// Package blobstore deletes and inspects evidence artifacts in object storage
// through gocloud.dev/blob. S3-compatible storage (s3blob over
// aws-sdk-go-v2), a local directory tree (fileblob) and an in-memory store
// (memblob) are supported.
//
// Delete is idempotent: an object that is already gone counts as deleted.
package blobstore

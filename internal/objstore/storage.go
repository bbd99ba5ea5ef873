// Package objstore abstracts the backends that hold snapshot archives.
// Snapshots are always written to the local snapshot directory first and
// can be mirrored to a remote store for off-host retention.
package objstore

import (
	"context"
	"errors"
)

// Common errors returned by Store implementations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// Store abstracts snapshot archive storage.
// Implementations include S3-compatible object stores and a local
// filesystem backend used for development and tests.
type Store interface {
	// Upload copies the file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies the object at objectPath to localPath.
	// Returns ErrObjectNotFound when no such object exists.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes the object at objectPath. Deleting an object
	// that does not exist is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists at objectPath.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	// Archives larger than one part are uploaded in parts.
	PartSize int64
	// Concurrency is the number of concurrent part uploads (default: 5).
	Concurrency int
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    5 * 1024 * 1024, // 5MB
		Concurrency: 5,
	}
}

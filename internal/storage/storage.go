package storage

import (
	"context"
	"io"
)

// Storage is the completed-montage store. Local mode keeps deliverables in
// the configured completed-montage directory; s3 mode archives them to a
// bucket. Keys are montage filenames, which are already unique.
type Storage interface {
	UploadFile(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error)
	GetFile(ctx context.Context, key string) (io.ReadCloser, string, error)
	DeleteFile(ctx context.Context, key string) error
}

type UploadResult struct {
	Key string
	URL string
}

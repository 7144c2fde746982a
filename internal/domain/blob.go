package domain

import (
	"context"
	"io"
)

// BlobWriter stores objects by key. PutMultipart is for bodies too large
// for a single request.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader fetches objects by key. Get returns ErrNotFound for a missing
// key; the caller closes the body.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

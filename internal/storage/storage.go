package storage

import (
	"context"
	"io"
)

type SaveOptions struct {
	ContentType  string
	OriginalName string
}

type FileInfo struct {
	Path        string
	ContentType string
	Size        int64
}

// Stager writes request payloads to transient storage and removes them again.
// Delete on a path that no longer exists returns an error wrapping os.ErrNotExist.
type Stager interface {
	Save(ctx context.Context, r io.Reader, opts SaveOptions) (FileInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

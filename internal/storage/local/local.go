package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ondrasimku/image-upload-service/internal/storage"
)

const maxExtLen = 10

type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{baseDir: abs}, nil
}

func (s *LocalStorage) Dir() string {
	return s.baseDir
}

func (s *LocalStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	id := uuid.New().String()

	filePath := filepath.Join(s.baseDir, id+safeExt(opts.OriginalName))
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filePath)
		return storage.FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	return storage.FileInfo{
		Path:        filePath,
		ContentType: opts.ContentType,
		Size:        size,
	}, nil
}

func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !s.contains(path) {
		return nil, fmt.Errorf("path %q is outside the staging directory", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	return file, nil
}

func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	if !s.contains(path) {
		return fmt.Errorf("path %q is outside the staging directory", path)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}

// Probe reports whether the staging directory currently accepts writes.
func (s *LocalStorage) Probe(ctx context.Context) error {
	f, err := os.CreateTemp(s.baseDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("staging directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (s *LocalStorage) contains(path string) bool {
	rel, err := filepath.Rel(s.baseDir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

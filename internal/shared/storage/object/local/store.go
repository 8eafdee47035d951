package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"resume-revamp/internal/shared/storage/object"
)

// Store keeps uploads and rewrite packages on the local filesystem.
type Store struct {
	baseDir string
}

// New creates a local object store rooted at baseDir.
func New(baseDir string) object.ObjectStore {
	return &Store{baseDir: baseDir}
}

// Save writes r under the user's namespace and reports the sniffed content type.
func (s *Store) Save(ctx context.Context, userID string, fileName string, r io.Reader) (string, int64, string, error) {
	key, err := object.NewKey(userID, fileName)
	if err != nil {
		return "", 0, "", err
	}
	body, mimeType, err := object.Sniff(r)
	if err != nil {
		return "", 0, "", err
	}
	n, err := s.write(ctx, key, body)
	if err != nil {
		return "", 0, "", err
	}
	return key, n, mimeType, nil
}

// SaveWithKey writes r at a caller-chosen key. Content type is not persisted on disk.
func (s *Store) SaveWithKey(ctx context.Context, storageKey string, _ string, r io.Reader) (int64, error) {
	key, err := object.CleanKey(storageKey)
	if err != nil {
		return 0, err
	}
	return s.write(ctx, key, r)
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := object.CleanKey(storageKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", key, object.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) write(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	return written, nil
}

var _ object.ObjectStore = (*Store)(nil)

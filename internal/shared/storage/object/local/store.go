package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dms-backend/internal/shared/storage/object"
	"dms-backend/internal/shared/util"
)

const providerName = "local"

// Store implements ObjectStore using the local filesystem. Locators are
// slash-separated paths relative to baseDir.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Provider() string { return providerName }

// Put writes the reader to disk under the owner's namespace.
func (s *Store) Put(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	key, err := util.ObjectKey(ownerID, fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("object key: %w", err)
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return object.Object{}, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return object.Object{}, fmt.Errorf("open file: %w", err)
	}

	written, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(fullPath)
		return object.Object{}, fmt.Errorf("write body: %w", errors.Join(copyErr, closeErr))
	}

	return object.Object{Locator: key, Key: key, Provider: providerName, Size: written}, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, object.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes the object. A missing file yields object.ErrNotFound.
func (s *Store) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return object.ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", locator, err)
	}
	return nil
}

func (s *Store) resolve(locator string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(locator)))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return filepath.Join(s.baseDir, clean), nil
}

var _ object.ObjectStore = (*Store)(nil)

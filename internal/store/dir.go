package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirStore is a ContentStore backed by a directory, one file per handle.
type DirStore struct {
	root string
}

var _ ContentStore = (*DirStore)(nil)

// NewDirStore creates the root directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create content dir %s: %w", root, err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(handle string) (string, error) {
	cleaned := filepath.Clean(handle)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid content handle %q", handle)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *DirStore) Read(ctx context.Context, handle string, maxBytes int64) ([]byte, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat content %s: %w", handle, err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content %s: %w", handle, err)
	}
	return data, nil
}

func (s *DirStore) Write(ctx context.Context, handle string, data []byte) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create content subdir for %s: %w", handle, err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write content %s: %w", handle, err)
	}
	return nil
}

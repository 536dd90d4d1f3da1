package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tradegate/internal/ports"
)

// FileStore persists snapshots as a single JSON document on disk.
// Writes go to a temp file in the same directory and are renamed into place,
// so a crash mid-write leaves the previous snapshot intact.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed snapshot store at the given path.
// The parent directory is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// WriteSnapshot atomically replaces the stored snapshot with data.
func (s *FileStore) WriteSnapshot(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to move snapshot file into place: %w", err)
	}
	return nil
}

// ReadLatestSnapshot returns the stored snapshot, or ErrSnapshotNotFound
// when none has been written yet.
func (s *FileStore) ReadLatestSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ports.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return data, nil
}

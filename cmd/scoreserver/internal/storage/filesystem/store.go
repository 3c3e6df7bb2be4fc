package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the ranking in a plain text file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Name() string {
	return "file:" + s.Path
}

// Load returns the file contents. A missing file yields an error wrapping
// os.ErrNotExist.
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scores file %s: %w", s.Path, err)
	}
	return data, nil
}

// Save replaces the file through a temporary file and a rename so readers
// never see a half-written ranking.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create scores directory: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scores file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace scores file: %w", err)
	}
	return nil
}

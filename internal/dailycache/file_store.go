package dailycache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// FileStore keeps one file per cached function under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads the entry stored under name.
func (s *FileStore) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dailycache: read %s: %w", name, err)
	}
	return data, nil
}

// Save replaces the entry stored under name. The write goes through a
// temporary file so readers never see a torn entry.
func (s *FileStore) Save(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("dailycache: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("dailycache: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("dailycache: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dailycache: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("dailycache: rename %s: %w", name, err)
	}
	return nil
}

var _ domain.CacheStore = (*FileStore)(nil)

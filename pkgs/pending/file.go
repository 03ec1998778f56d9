package pending

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the slot as a small JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path, creating parent directories.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("pending file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pending directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (Submission, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return decode(data)
}

func (f *FileStore) Save(_ context.Context, s Submission) error {
	data, err := encode(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(data)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write([]byte("{}"))
}

// write replaces the file atomically.
func (f *FileStore) write(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".pending-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pending state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// Owner-only permissions; the stored handle identifies this installation.
	fileDirPerms  = 0700
	fileDataPerms = 0600
)

// FileStore persists each key as a file under a root directory.
// The directory is created on first write.
type FileStore struct {
	mu      sync.RWMutex
	rootDir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file storage: root directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to resolve root directory: %w", err)
	}
	return &FileStore{rootDir: abs}, nil
}

// Set writes value to the file for key. The write goes through a temporary
// file and a rename so readers never observe a partial value.
func (f *FileStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.rootDir, fileDirPerms); err != nil {
		return fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.rootDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file storage: failed to create temp file for key %q: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}
	if err := tmp.Chmod(fileDataPerms); err != nil {
		tmp.Close()
		return fmt.Errorf("file storage: failed to set permissions for key %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}

	if err := os.Rename(tmpName, f.keyToPath(key)); err != nil {
		return fmt.Errorf("file storage: failed to commit key %q: %w", key, err)
	}
	return nil
}

// Get reads the value stored for key.
func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}
	return string(data), nil
}

// Remove deletes the file for key.
func (f *FileStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.keyToPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}
	return nil
}

// Dir returns the root directory.
func (f *FileStore) Dir() string {
	return f.rootDir
}

// keyToPath hex-encodes the key so arbitrary key names map to safe file names.
func (f *FileStore) keyToPath(key string) string {
	return filepath.Join(f.rootDir, hex.EncodeToString([]byte(key)))
}

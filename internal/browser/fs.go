package browser

import (
	"errors"
	"fmt"
	"os"
)

// FileSystem is the subset of filesystem access the resolver needs.
type FileSystem interface {
	Exists(path string) bool
	MakeExecutable(path string) error
	MkdirAll(path string) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// OSFileSystem is FileSystem on the local disk.
type OSFileSystem struct{}

// Exists reports whether path is an existing regular file (after following links).
func (OSFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// MakeExecutable sets rwxr-xr-x on path.
func (OSFileSystem) MakeExecutable(path string) error {
	// #nosec G302 -- the browser binary must be executable by the service user.
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates path and any parents.
func (OSFileSystem) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// ReadFile reads the whole file.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	// #nosec G304 -- path is the marker file inside the configured cache directory.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile replaces the file contents.
func (OSFileSystem) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

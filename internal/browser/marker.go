package browser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MarkerFileName is the plain-text file under the cache directory holding the
// last resolved executable path.
const MarkerFileName = "executable_path.txt"

// Marker persists the last resolved executable path. It is a hint only; the
// recorded path must be re-checked before use.
type Marker struct {
	fs   FileSystem
	path string
}

// NewMarker returns the marker stored in cacheDir.
func NewMarker(fs FileSystem, cacheDir string) *Marker {
	return &Marker{fs: fs, path: filepath.Join(cacheDir, MarkerFileName)}
}

// Path is the marker file location.
func (m *Marker) Path() string {
	return m.path
}

// Read returns the recorded path or ErrNotFound.
func (m *Marker) Read() (string, error) {
	data, err := m.fs.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	recorded := strings.TrimSpace(string(data))
	if recorded == "" {
		return "", ErrNotFound
	}
	return recorded, nil
}

// Write records executable as an absolute path; the file holds nothing else.
func (m *Marker) Write(executable string) error {
	abs, err := filepath.Abs(executable)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return m.fs.WriteFile(m.path, []byte(abs))
}

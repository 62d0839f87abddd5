package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBundledPath means the bundling capability knows no executable location.
	ErrNoBundledPath = errors.New("no bundled browser path")
	// ErrNotFound means a file or binary does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownPlatform means no snapshot layout is known for the platform.
	ErrUnknownPlatform = errors.New("unknown browser platform")
)

// Locator reports where a bundled browser should be.
type Locator interface {
	ExecutablePath() (string, error)
}

// BundledLocator returns an explicitly configured path, or else the location a
// previous download of the pinned revision would occupy in the cache.
type BundledLocator struct {
	Path     string
	CacheDir string
	Revision string
	Platform string
}

// ExecutablePath implements Locator.
func (l BundledLocator) ExecutablePath() (string, error) {
	if l.Path != "" {
		return l.Path, nil
	}
	if l.CacheDir == "" || l.Revision == "" {
		return "", ErrNoBundledPath
	}
	p, err := LookupPlatform(l.Platform)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoBundledPath, err)
	}
	return p.InstallPath(l.CacheDir, l.Revision), nil
}

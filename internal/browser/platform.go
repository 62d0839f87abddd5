package browser

import (
	"fmt"
	"path"
	"path/filepath"
	"runtime"
)

// Platform describes where a Chromium snapshot lives and what it unpacks to.
type Platform struct {
	Name           string
	SnapshotPrefix string
	Archive        string
	// Executable is slash-separated and relative to the install directory.
	Executable string
}

var platforms = map[string]Platform{
	"linux": {
		Name:           "linux",
		SnapshotPrefix: "Linux_x64",
		Archive:        "chrome-linux.zip",
		Executable:     "chrome-linux/chrome",
	},
	"mac": {
		Name:           "mac",
		SnapshotPrefix: "Mac",
		Archive:        "chrome-mac.zip",
		Executable:     "chrome-mac/Chromium.app/Contents/MacOS/Chromium",
	},
	"mac_arm": {
		Name:           "mac_arm",
		SnapshotPrefix: "Mac_Arm",
		Archive:        "chrome-mac.zip",
		Executable:     "chrome-mac/Chromium.app/Contents/MacOS/Chromium",
	},
	"win64": {
		Name:           "win64",
		SnapshotPrefix: "Win_x64",
		Archive:        "chrome-win.zip",
		Executable:     "chrome-win/chrome.exe",
	},
}

// DetectPlatform maps GOOS/GOARCH onto a snapshot platform name.
func DetectPlatform(goos, goarch string) string {
	switch goos {
	case "darwin":
		if goarch == "arm64" {
			return "mac_arm"
		}
		return "mac"
	case "windows":
		return "win64"
	default:
		return "linux"
	}
}

// LookupPlatform resolves a platform by name; an empty name means the host platform.
func LookupPlatform(name string) (Platform, error) {
	if name == "" {
		name = DetectPlatform(runtime.GOOS, runtime.GOARCH)
	}
	p, ok := platforms[name]
	if !ok {
		return Platform{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

// ObjectName is the snapshot bucket object holding the archive for revision.
func (p Platform) ObjectName(revision string) string {
	return path.Join(p.SnapshotPrefix, revision, p.Archive)
}

// InstallDir is where revision is unpacked under cacheDir.
func (p Platform) InstallDir(cacheDir, revision string) string {
	return filepath.Join(cacheDir, p.Name+"-"+revision)
}

// InstallPath is the executable inside InstallDir.
func (p Platform) InstallPath(cacheDir, revision string) string {
	return filepath.Join(p.InstallDir(cacheDir, revision), filepath.FromSlash(p.Executable))
}

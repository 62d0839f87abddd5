package config

import "time"

// Environment is the process configuration read once at startup. It is passed
// by value and never mutated; the mutable degraded flag lives in mode.State.
type Environment struct {
	Mode                  DeploymentMode
	ResourceURI           string
	DegradedModeRequested bool
	CacheDir              string

	// ExecutablePathOverride is honored by the render layer, not by the binary resolver.
	ExecutablePathOverride string
	BundledExecutablePath  string
	BrowserRevision        string
	BrowserPlatform        string
	SnapshotBucket         string

	ConnectTimeout time.Duration
	FetchTimeout   time.Duration
}

// Production reports whether the deployment mode is production.
func (e Environment) Production() bool {
	return e.Mode == ModeProduction
}

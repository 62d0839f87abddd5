// Package browser finds or installs a headless browser binary. A missing
// browser never stops the process; it only disables rendering.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/acquire"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/config"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
)

// Resource is the name used in logs and metrics.
const Resource = "browser"

// Tier names in probe order. The marker is consulted after the bundled
// binary so a configured bundle always wins over a recorded path.
const (
	TierBundled = "bundled"
	TierMarker  = "cached-marker"
	TierFetch   = "fetch"
	TierSystem  = "system"
)

// Degraded reasons.
const (
	ReasonSkipped  = "skipped outside production"
	ReasonNoBinary = "no usable binary found"
)

// SystemBinaries are searched on PATH, in order, by the system tier.
var SystemBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

const defaultFetchTimeout = 5 * time.Minute

// PathLookup finds an executable on the search path.
type PathLookup func(file string) (string, error)

// Deps are the capabilities the resolver probes. Nil fields fall back to the
// local implementations, except Fetcher which disables the fetch tier.
type Deps struct {
	Locator  Locator
	Fetcher  Fetcher
	LookPath PathLookup
	FS       FileSystem
}

// Resolver owns the browser fallback policy.
type Resolver struct {
	env    config.Environment
	deps   Deps
	marker *Marker
	logger *zap.Logger
}

// NewResolver wires a Resolver from env and deps.
func NewResolver(env config.Environment, deps Deps, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.FS == nil {
		deps.FS = OSFileSystem{}
	}
	if deps.LookPath == nil {
		deps.LookPath = exec.LookPath
	}
	if deps.Locator == nil {
		deps.Locator = BundledLocator{
			Path:     env.BundledExecutablePath,
			CacheDir: env.CacheDir,
			Revision: env.BrowserRevision,
			Platform: env.BrowserPlatform,
		}
	}
	return &Resolver{
		env:    env,
		deps:   deps,
		marker: NewMarker(deps.FS, env.CacheDir),
		logger: logger,
	}
}

// Resolve returns the executable path or a degraded outcome. It never returns
// a fatal outcome and never touches the process-wide degraded flag.
func (r *Resolver) Resolve(ctx context.Context) acquire.Outcome[string] {
	outcome := r.resolve(ctx)
	metrics.ObserveResolution(Resource, outcome.Kind.String())
	return outcome
}

func (r *Resolver) resolve(ctx context.Context) acquire.Outcome[string] {
	if !r.env.Production() {
		r.logger.Info("browser resolution skipped", zap.String("reason", ReasonSkipped))
		return acquire.Degraded[string](ReasonSkipped, nil)
	}

	if err := r.deps.FS.MkdirAll(r.env.CacheDir); err != nil {
		r.logger.Warn("could not create browser cache directory",
			zap.String("cache_dir", r.env.CacheDir),
			zap.Error(err),
		)
	}

	res := acquire.Run(ctx, Resource, r.tiers(), r.logger)
	if !res.Acquired {
		r.logger.Warn("no browser binary available, rendering is disabled",
			zap.String("reason", ReasonNoBinary),
			zap.Int("tiers_tried", len(res.Failures)),
		)
		return acquire.Degraded[string](ReasonNoBinary, res.Failures)
	}

	if res.Tier != TierMarker {
		if err := r.marker.Write(res.Resource); err != nil {
			r.logger.Warn("could not record browser path", zap.String("marker", r.marker.Path()), zap.Error(err))
		}
	}
	r.logger.Info("browser binary resolved",
		zap.String("tier", res.Tier),
		zap.String("path", res.Resource),
	)
	return acquire.Acquired(res.Resource, res.Tier)
}

func (r *Resolver) tiers() []acquire.Tier[string] {
	return []acquire.Tier[string]{
		{Name: TierBundled, Probe: r.probeBundled},
		{Name: TierMarker, Probe: r.probeMarker},
		{Name: TierFetch, Probe: r.probeFetch},
		{Name: TierSystem, Probe: r.probeSystem},
	}
}

func (r *Resolver) probeMarker(context.Context) (string, error) {
	recorded, err := r.marker.Read()
	if errors.Is(err, ErrNotFound) {
		return "", acquire.NotConfigured("no recorded path")
	}
	if err != nil {
		return "", acquire.ProbeFailed("marker unreadable", err)
	}
	if !r.deps.FS.Exists(recorded) {
		return "", acquire.VerificationFailed("recorded path missing on disk",
			fmt.Errorf("%w: %s", ErrNotFound, recorded))
	}
	return recorded, nil
}

func (r *Resolver) probeBundled(context.Context) (string, error) {
	bundled, err := r.deps.Locator.ExecutablePath()
	if err != nil || bundled == "" {
		return "", acquire.NotConfigured("no bundled path")
	}
	if !r.deps.FS.Exists(bundled) {
		return "", acquire.VerificationFailed("bundled path missing on disk",
			fmt.Errorf("%w: %s", ErrNotFound, bundled))
	}
	return bundled, nil
}

func (r *Resolver) probeFetch(ctx context.Context) (string, error) {
	if r.deps.Fetcher == nil {
		return "", acquire.NotConfigured("no fetcher configured")
	}
	timeout := r.env.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetched, err := r.deps.Fetcher.Fetch(fetchCtx, r.env.BrowserRevision, r.env.CacheDir, r.env.BrowserPlatform)
	if err != nil {
		return "", acquire.ProbeFailed("fetch failed", err)
	}
	if fetched == "" || !r.deps.FS.Exists(fetched) {
		return "", acquire.VerificationFailed("fetched path missing on disk",
			fmt.Errorf("%w: %s", ErrNotFound, fetched))
	}
	if err := r.deps.FS.MakeExecutable(fetched); err != nil {
		return "", acquire.ProbeFailed("could not mark binary executable", err)
	}
	return fetched, nil
}

func (r *Resolver) probeSystem(context.Context) (string, error) {
	for _, name := range SystemBinaries {
		found, err := r.deps.LookPath(name)
		if err == nil && found != "" {
			return found, nil
		}
	}
	return "", acquire.NotConfigured("no browser on PATH")
}

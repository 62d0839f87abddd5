// Package connectivity decides at startup whether the process gets a live
// database handle, runs degraded without one, or must stop.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/acquire"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/config"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/lifecycle"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/mode"
)

// Resource is the name used in logs, metrics and mode entries.
const Resource = "database"

// TierConfiguredURI is the only acquisition tier for the database.
const TierConfiguredURI = "configured-uri"

// Reasons attached to degraded and fatal outcomes. They stay distinct so an
// operator can tell a missing setting from an outage.
const (
	ReasonNoURI       = "no URI provided"
	ReasonUnreachable = "URI provided but unreachable"
	ReasonUnsafeLocal = "unsafe local URI in production"
)

// Observers are passive callbacks on an acquired handle. They log and count;
// they never change the resolution outcome.
type Observers struct {
	OnDisconnect func(host string)
	OnError      func(err error)
}

// Handle is a live database connection.
type Handle interface {
	Ping(ctx context.Context) error
	Close()
	Observe(obs Observers)
}

// Connector opens a handle for uri within timeout.
type Connector interface {
	Connect(ctx context.Context, uri string, timeout time.Duration) (Handle, error)
}

// Registrar accepts release hooks for process termination.
type Registrar interface {
	Register(name string, hook lifecycle.Hook) bool
}

// Resolver owns the database fallback policy.
type Resolver struct {
	env       config.Environment
	state     *mode.State
	connector Connector
	guard     Registrar
	logger    *zap.Logger

	mu       sync.Mutex
	handles  []Handle
	hookOnce sync.Once
}

// NewResolver wires a Resolver. guard may be nil when no release hook is wanted.
func NewResolver(
	env config.Environment,
	state *mode.State,
	connector Connector,
	guard Registrar,
	logger *zap.Logger,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		env:       env,
		state:     state,
		connector: connector,
		guard:     guard,
		logger:    logger,
	}
}

// Resolve runs one resolution pass. The classification depends only on the
// environment, the mode flag and the probe result.
func (r *Resolver) Resolve(ctx context.Context) acquire.Outcome[Handle] {
	res := acquire.Run(ctx, Resource, []acquire.Tier[Handle]{r.configuredURITier()}, r.logger)

	var outcome acquire.Outcome[Handle]
	if res.Acquired {
		r.attach(res.Resource)
		outcome = acquire.Acquired(res.Resource, res.Tier)
		r.logger.Info("database connected", zap.String("tier", res.Tier))
	} else {
		reason := ReasonUnreachable
		if last := res.LastFailure(); last != nil {
			reason = last.Reason
		}
		outcome = r.classify(reason, res.Failures)
	}
	metrics.ObserveResolution(Resource, outcome.Kind.String())
	return outcome
}

func (r *Resolver) configuredURITier() acquire.Tier[Handle] {
	return acquire.Tier[Handle]{
		Name: TierConfiguredURI,
		Probe: func(ctx context.Context) (Handle, error) {
			uri := r.env.ResourceURI
			if uri == "" {
				return nil, acquire.NotConfigured(ReasonNoURI)
			}
			if r.env.Production() {
				local, err := IsLocalURI(uri)
				if err != nil {
					r.logger.Debug("could not inspect uri hosts", zap.Error(err))
				}
				if local {
					return nil, acquire.NotConfigured(ReasonUnsafeLocal)
				}
			}

			timeout := r.env.ConnectTimeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			h, err := r.connector.Connect(probeCtx, uri, timeout)
			if err != nil {
				return nil, acquire.ProbeFailed(ReasonUnreachable, err)
			}
			return h, nil
		},
	}
}

func (r *Resolver) classify(reason string, failures []*acquire.TierFailure) acquire.Outcome[Handle] {
	switch {
	case r.env.Production():
		if r.state.EnterDegraded(Resource, reason) {
			metrics.SetDegraded(true)
		}
		r.warnDegraded(reason, "production deployment continues without a database")
		return acquire.Degraded[Handle](reason, failures)
	case r.state.Degraded():
		r.warnDegraded(reason, "degraded mode was requested by the operator")
		return acquire.Degraded[Handle](reason, failures)
	default:
		r.logger.Error("database is not available and degraded mode is off",
			zap.String("reason", reason),
			zap.Strings("remedies", []string{
				"start a local database",
				"set RESOURCE_URI to a reachable database",
				"set DEGRADED_MODE=true to run without persistence",
			}),
		)
		return acquire.Fatal[Handle](reason, failures)
	}
}

func (r *Resolver) warnDegraded(reason, why string) {
	r.logger.Warn("DEGRADED MODE: database unavailable, records will not be saved or loaded",
		zap.String("reason", reason),
		zap.String("why", why),
	)
}

func (r *Resolver) attach(h Handle) {
	h.Observe(Observers{
		OnDisconnect: func(host string) {
			metrics.ObserveDatabaseEvent("disconnect")
			r.logger.Info("database disconnected", zap.String("host", host))
		},
		OnError: func(err error) {
			metrics.ObserveDatabaseEvent("error")
			r.logger.Error("database error", zap.Error(err))
		},
	})

	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()

	if r.guard == nil {
		return
	}
	r.hookOnce.Do(func() {
		if !r.guard.Register(Resource, r.release) {
			r.logger.Debug("database release hook already registered")
		}
	})
}

// release closes every handle this resolver handed out.
func (r *Resolver) release(context.Context) error {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	if len(handles) > 0 {
		r.logger.Info("database connection closed through app termination")
	}
	return nil
}

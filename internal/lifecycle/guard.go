// Package lifecycle owns process termination: a single signal handler that
// releases acquired resources exactly once before the process exits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Hook releases one resource.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Guard runs release hooks once, either on the first termination signal or on
// an explicit Shutdown, whichever happens first.
type Guard struct {
	logger  *zap.Logger
	notify  func(chan<- os.Signal, ...os.Signal)
	stop    func(chan<- os.Signal)
	exit    func(int)
	timeout time.Duration

	mu       sync.Mutex
	hooks    []namedHook
	names    map[string]struct{}
	released bool

	startOnce   sync.Once
	releaseOnce sync.Once
	releaseErr  error
	done        chan struct{}
}

// Option customizes a Guard.
type Option func(*Guard)

// WithSignals replaces signal.Notify / signal.Stop, mainly for tests.
func WithSignals(notify func(chan<- os.Signal, ...os.Signal), stop func(chan<- os.Signal)) Option {
	return func(g *Guard) {
		g.notify = notify
		g.stop = stop
	}
}

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(g *Guard) {
		g.exit = exit
	}
}

// WithReleaseTimeout bounds how long hooks may run after a signal.
func WithReleaseTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGuard builds a Guard. Call Start to install the signal handler.
func NewGuard(logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		logger:  logger,
		notify:  signal.Notify,
		stop:    signal.Stop,
		exit:    os.Exit,
		timeout: 10 * time.Second,
		names:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a release hook under a unique name. It returns false when the
// name is already registered or the guard has already released.
func (g *Guard) Register(name string, hook Hook) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		g.logger.Warn("release hook registered after shutdown", zap.String("hook", name))
		return false
	}
	if _, ok := g.names[name]; ok {
		return false
	}
	g.names[name] = struct{}{}
	g.hooks = append(g.hooks, namedHook{name: name, fn: hook})
	return true
}

// Start installs the SIGINT/SIGTERM handler. Calling it again is a no-op.
func (g *Guard) Start() {
	g.startOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		g.notify(ch, os.Interrupt, syscall.SIGTERM)
		go g.watch(ch)
	})
}

func (g *Guard) watch(ch chan os.Signal) {
	defer g.stop(ch)
	select {
	case sig := <-ch:
		g.logger.Info("termination signal received", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		err := g.Shutdown(ctx)
		cancel()
		if err != nil {
			g.logger.Warn("release on termination finished with errors", zap.Error(err))
		}
		g.exit(0)
	case <-g.done:
	}
}

// Shutdown runs the hooks in reverse registration order. Only the first call
// does any work; later calls return the same error.
func (g *Guard) Shutdown(ctx context.Context) error {
	g.releaseOnce.Do(func() {
		g.mu.Lock()
		g.released = true
		hooks := append([]namedHook(nil), g.hooks...)
		g.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.fn(ctx); err != nil {
				g.logger.Warn("release hook failed", zap.String("hook", h.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
				continue
			}
			g.logger.Info("resource released", zap.String("hook", h.name))
		}
		g.releaseErr = errors.Join(errs...)
		close(g.done)
	})
	return g.releaseErr
}

// Done is closed once the hooks have run.
func (g *Guard) Done() <-chan struct{} {
	return g.done
}

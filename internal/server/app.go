// Package server assembles the service from configuration: it resolves the
// startup resources, builds the capabilities that depend on them and serves
// the HTTP API until termination.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/acquire"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/api"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/bootstrap"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/browser"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/config"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/connectivity"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/lifecycle"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/logging"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/mode"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/notify"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/records"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/render"
)

const (
	renderParallelism = 2
	renderTimeout     = 45 * time.Second
	shutdownTimeout   = 10 * time.Second
	recordsComponent  = "records"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	env    config.Environment
	logger *zap.Logger
	guard  *lifecycle.Guard
	state  *mode.State

	connector   connectivity.Connector
	browserDeps browser.Deps
	publisher   notify.Publisher
	fetcher     *browser.SnapshotFetcher
	listener    net.Listener
}

// Option customizes App construction.
type Option func(*App)

// WithConnector replaces the Postgres connector.
func WithConnector(c connectivity.Connector) Option {
	return func(a *App) { a.connector = c }
}

// WithBrowserDeps replaces the browser capabilities.
func WithBrowserDeps(d browser.Deps) Option {
	return func(a *App) { a.browserDeps = d }
}

// WithPublisher replaces the report publisher.
func WithPublisher(p notify.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithListener serves on l instead of the configured port.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// Build creates the application's dependencies. Nothing is resolved yet.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, guard *lifecycle.Guard, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = lifecycle.NewGuard(logging.Component(logger, "lifecycle"))
	}
	env := cfg.Environment()
	a := &App{
		cfg:    cfg,
		env:    env,
		logger: logger,
		guard:  guard,
		state:  mode.New(env.DegradedModeRequested),
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.SetDegraded(a.state.Degraded())

	logger.Info("creating application",
		zap.String("deployment_mode", string(env.Mode)),
		zap.Bool("resource_uri_set", env.ResourceURI != ""),
		zap.Bool("degraded_mode_requested", env.DegradedModeRequested),
		zap.String("cache_dir", env.CacheDir),
		zap.Int("server_port", cfg.Server.Port),
	)

	if a.connector == nil {
		a.connector = connectivity.PostgresConnector{MaxConns: cfg.Connect.MaxConns}
	}
	if a.publisher == nil {
		p, err := setupPublisher(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.publisher = p
	}
	if a.browserDeps.Fetcher == nil && env.Production() {
		a.setupFetcher(ctx)
	}
	a.guard.Register("clients", a.closeClients)
	return a, nil
}

func setupPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("no Pub/Sub topic configured, bootstrap reports are logged only")
		return notify.NewLog(logging.Component(logger, "notify")), nil
	}
	p, err := notify.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName),
	)
	return p, nil
}

// setupFetcher leaves the fetch tier unconfigured when no client can be made.
func (a *App) setupFetcher(ctx context.Context) {
	if a.env.SnapshotBucket == "" {
		a.logger.Info("no snapshot bucket configured, browser downloads disabled")
		return
	}
	f, err := browser.NewSnapshotFetcher(ctx, a.env.SnapshotBucket, logging.Component(a.logger, "snapshot_fetcher"))
	if err != nil {
		a.logger.Warn("snapshot fetcher init failed, browser downloads disabled", zap.Error(err))
		return
	}
	a.fetcher = f
	a.browserDeps.Fetcher = f
}

// State exposes the degraded-mode flag.
func (a *App) State() *mode.State {
	return a.state
}

// Resolve runs the bootstrap sequence. withDatabase=false resolves only the
// browser.
func (a *App) Resolve(ctx context.Context, withDatabase bool) (bootstrap.Result, error) {
	seq := &bootstrap.Sequence{
		Env:       a.env,
		State:     a.state,
		Browser:   browser.NewResolver(a.env, a.browserDeps, logging.Component(a.logger, "browser")),
		Publisher: a.publisher,
		Logger:    logging.Component(a.logger, "bootstrap"),
	}
	if withDatabase {
		seq.Database = connectivity.NewResolver(
			a.env,
			a.state,
			a.connector,
			a.guard,
			logging.Component(a.logger, "connectivity"),
		)
	}
	res, err := seq.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("resolve resources: %w", err)
	}
	return res, nil
}

// Run resolves everything, serves HTTP and blocks until the guard releases or
// ctx ends. A fatal database outcome returns an error wrapping
// bootstrap.ErrFatal before anything is served.
func (a *App) Run(ctx context.Context) error {
	res, err := a.Resolve(ctx, true)
	if err != nil {
		return err
	}

	store := a.buildStore(ctx, res.Database)
	renderer, err := a.buildRenderer(res.Browser)
	if err != nil {
		return err
	}
	a.guard.Register("renderer", func(context.Context) error {
		renderer.Close()
		return nil
	})

	res.Report.Mode = a.state.Snapshot()
	res.Report.Degraded = res.Report.Mode.Degraded

	apiServer := api.NewServer(store, renderer, logging.Component(a.logger, "api"))
	apiServer.SetReport(res.Report)

	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln := a.listener
	if ln == nil {
		ln, err = net.Listen("tcp", ":"+strconv.Itoa(a.cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	a.guard.Register("http", srv.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-a.guard.Done():
		return nil
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("http server error", zap.Error(err))
			a.Shutdown()
			return fmt.Errorf("http server: %w", err)
		}
	}
	a.Shutdown()
	return nil
}

// Shutdown releases every registered resource once.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.guard.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
}

func (a *App) buildStore(ctx context.Context, outcome acquire.Outcome[connectivity.Handle]) records.Store {
	storeLogger := logging.Component(a.logger, "records")
	reason := outcome.Reason
	if outcome.Kind == acquire.OutcomeAcquired {
		db, ok := outcome.Resource.(*connectivity.Database)
		if ok {
			pg, err := records.NewPostgresStore(db.Pool(), "")
			if err == nil {
				err = pg.EnsureSchema(ctx)
			}
			if err == nil {
				return pg
			}
			storeLogger.Error("records store init failed", zap.Error(err))
			reason = err.Error()
		} else {
			reason = "database handle does not expose a pool"
		}
		if a.state.EnterDegraded(recordsComponent, reason) {
			storeLogger.Warn("degraded mode entered", zap.String("reason", reason))
		}
		metrics.SetDegraded(true)
	}
	return records.NewSampleStore(reason, storeLogger)
}

func (a *App) buildRenderer(outcome acquire.Outcome[string]) (render.Renderer, error) {
	executable := ""
	if outcome.Kind == acquire.OutcomeAcquired {
		executable = outcome.Resource
	}
	if a.env.ExecutablePathOverride != "" {
		a.logger.Info("browser executable overridden", zap.String("path", a.env.ExecutablePathOverride))
	}
	r, err := render.Select(executable, a.env.ExecutablePathOverride, outcome.Reason, render.Config{
		MaxParallel:       renderParallelism,
		NavigationTimeout: renderTimeout,
	}, logging.Component(a.logger, "render"))
	if err != nil {
		return nil, fmt.Errorf("renderer init failed: %w", err)
	}
	return r, nil
}

func (a *App) closeClients(context.Context) error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.fetcher != nil {
		if err := a.fetcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

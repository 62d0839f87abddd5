package connectivity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConnector opens a pgx connection pool and pings it once.
type PostgresConnector struct {
	MaxConns int32
}

// Connect parses uri, builds a pool and verifies it with a single ping bounded
// by timeout. There is no retry.
func (c PostgresConnector) Connect(ctx context.Context, uri string, timeout time.Duration) (Handle, error) {
	poolCfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("parse postgres uri: %w", err)
	}
	if timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = timeout
	}
	if c.MaxConns > 0 {
		poolCfg.MaxConns = c.MaxConns
	}

	db := &Database{}
	poolCfg.ConnConfig.Tracer = &observerTracer{db: db}
	poolCfg.BeforeClose = func(conn *pgx.Conn) {
		db.disconnected(conn.Config().Host)
	}

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.pool = pool
	return db, nil
}

// Database is the pgx-backed Handle.
type Database struct {
	pool      *pgxpool.Pool
	observers atomic.Pointer[Observers]
}

// Pool exposes the pool for repositories.
func (d *Database) Pool() *pgxpool.Pool {
	return d.pool
}

// Ping checks the pool is still usable.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (d *Database) Close() {
	d.pool.Close()
}

// Observe attaches passive observers. Later calls replace earlier ones.
func (d *Database) Observe(obs Observers) {
	d.observers.Store(&obs)
}

func (d *Database) disconnected(host string) {
	if obs := d.observers.Load(); obs != nil && obs.OnDisconnect != nil {
		obs.OnDisconnect(host)
	}
}

func (d *Database) failed(err error) {
	if obs := d.observers.Load(); obs != nil && obs.OnError != nil {
		obs.OnError(err)
	}
}

// observerTracer forwards query and connect errors to the error observer.
type observerTracer struct {
	db *Database
}

func (t *observerTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return ctx
}

func (t *observerTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		t.db.failed(data.Err)
	}
}

func (t *observerTracer) TraceConnectStart(ctx context.Context, _ pgx.TraceConnectStartData) context.Context {
	return ctx
}

func (t *observerTracer) TraceConnectEnd(_ context.Context, data pgx.TraceConnectEndData) {
	if data.Err != nil {
		t.db.failed(data.Err)
	}
}

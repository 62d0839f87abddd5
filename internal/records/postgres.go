package records

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds snapshot rows.
const DefaultTable = "page_snapshots"

// Querier is the subset of *pgxpool.Pool used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore writes snapshots into Postgres. It does not own the pool.
type PostgresStore struct {
	db    Querier
	table string
}

// NewPostgresStore wraps db. An empty table uses DefaultTable.
func NewPostgresStore(db Querier, table string) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// EnsureSchema creates the snapshot table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           uuid PRIMARY KEY,
	url          text NOT NULL,
	final_url    text NOT NULL,
	status_code  integer NOT NULL,
	title        text NOT NULL DEFAULT '',
	content_hash text NOT NULL,
	bytes        integer NOT NULL,
	rendered_at  timestamptz NOT NULL
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	final_url,
	status_code,
	title,
	content_hash,
	bytes,
	rendered_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)
	args := []any{
		snap.ID,
		snap.URL,
		snap.FinalURL,
		snap.StatusCode,
		snap.Title,
		snap.ContentHash,
		snap.Bytes,
		snap.RenderedAt,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Recent implements Store, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	query := fmt.Sprintf(`
SELECT id, url, final_url, status_code, title, content_hash, bytes, rendered_at
FROM %s
ORDER BY rendered_at DESC
LIMIT $1`, s.table)
	rows, err := s.db.Query(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(
			&snap.ID,
			&snap.URL,
			&snap.FinalURL,
			&snap.StatusCode,
			&snap.Title,
			&snap.ContentHash,
			&snap.Bytes,
			&snap.RenderedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

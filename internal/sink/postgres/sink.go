// Package postgres persists classification results into a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "cms_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and target table.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
	// InsecureSkipVerify accepts any server certificate when the DSN enables TLS.
	InsecureSkipVerify bool
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes one row per result. It is safe for concurrent use; the pool
// serializes nothing beyond what Postgres itself requires.
type Sink struct {
	pool  execCloser
	table string
	runID string
	clock scanner.Clock
}

// New connects to Postgres and ensures the results table exists.
func New(ctx context.Context, cfg Config, runID string, clock scanner.Clock) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.InsecureSkipVerify {
		skipVerify(poolCfg)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, runID, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table, runID string, clock scanner.Clock) (*Sink, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{pool: pool, table: table, runID: runID, clock: clock}, nil
}

// EnsureSchema creates the results table when it is missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	run_id TEXT,
	company TEXT,
	url TEXT,
	cms TEXT,
	reason TEXT,
	scanned_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Accept inserts a single result row.
func (s *Sink) Accept(ctx context.Context, result scanner.ClassificationResult) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (run_id, company, url, cms, reason, scanned_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.table,
	)
	_, err := s.pool.Exec(ctx, query,
		s.runID,
		result.Organization,
		result.URL,
		result.Platform.String(),
		result.Reason,
		s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Sink) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func skipVerify(cfg *pgxpool.Config) {
	if tc := cfg.ConnConfig.TLSConfig; tc != nil {
		tc.InsecureSkipVerify = true
		tc.VerifyPeerCertificate = nil
	}
	for _, fb := range cfg.ConnConfig.Fallbacks {
		if fb.TLSConfig != nil {
			fb.TLSConfig.InsecureSkipVerify = true
			fb.TLSConfig.VerifyPeerCertificate = nil
		}
	}
}

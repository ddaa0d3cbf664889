// Package sqlite persists classification results into a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// DefaultTable is used when no table name is given.
const DefaultTable = "cms_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var columns = []string{"run_id", "company", "url", "cms", "reason", "scanned_at"}

// Row is a persisted result as read back from the database.
type Row struct {
	RunID     string
	Result    scanner.ClassificationResult
	ScannedAt time.Time
}

// Sink writes results to SQLite. Writes are serialized.
type Sink struct {
	mu    sync.Mutex
	db    *sql.DB
	table string
	runID string
	clock scanner.Clock
}

// Open creates the database file (and its directory) if needed and ensures
// the results table exists.
func Open(ctx context.Context, path, table, runID string, clock scanner.Clock) (*Sink, error) {
	if path == "" {
		return nil, errors.New("sink.sqlite_path is required")
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
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Sink{db: db, table: table, runID: runID, clock: clock}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	company TEXT,
	url TEXT,
	cms TEXT,
	reason TEXT,
	scanned_at TEXT
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Accept inserts one row.
func (s *Sink) Accept(ctx context.Context, result scanner.ClassificationResult) error {
	query, args, err := sq.Insert(s.table).
		Columns(columns...).
		Values(
			s.runID,
			result.Organization,
			result.URL,
			result.Platform.String(),
			result.Reason,
			s.clock.Now().UTC().Format(time.RFC3339Nano),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Rows returns the rows stored for runID in insertion order. An empty runID
// returns every row.
func (s *Sink) Rows(ctx context.Context, runID string) ([]Row, error) {
	builder := sq.Select(columns...).From(s.table).OrderBy("id")
	if runID != "" {
		builder = builder.Where(sq.Eq{"run_id": runID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row       Row
			platform  string
			scannedAt string
		)
		if err := rows.Scan(
			&row.RunID,
			&row.Result.Organization,
			&row.Result.URL,
			&platform,
			&row.Result.Reason,
			&scannedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		row.Result.Platform = scanner.Platform(platform)
		if row.ScannedAt, err = time.Parse(time.RFC3339Nano, scannedAt); err != nil {
			return nil, fmt.Errorf("parse scanned_at %q: %w", scannedAt, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

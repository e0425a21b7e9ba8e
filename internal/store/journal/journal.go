// Package journal persists an append-only record of engine operations and
// their per-leg outcomes, so partially completed multi-leg sequences are
// always visible after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	KindEntry        = "entry"
	KindBorrow       = "borrow"
	KindRepay        = "repay"
	KindProtection   = "protection"
	KindClose        = "close"
	KindInvalidation = "invalidation"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is one journaled operation leg.
type Record struct {
	ID      int64  `json:"id"`
	TraceID string `json:"trace_id"`
	TS      int64  `json:"ts"`
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	Leg     string `json:"leg,omitempty"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS operations (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    trace_id TEXT NOT NULL,
    ts       INTEGER NOT NULL,
    symbol   TEXT NOT NULL,
    kind     TEXT NOT NULL,
    leg      TEXT NOT NULL DEFAULT '',
    status   TEXT NOT NULL,
    detail   TEXT NOT NULL DEFAULT '',
    error    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_operations_symbol_ts ON operations(symbol, ts DESC);
CREATE INDEX IF NOT EXISTS idx_operations_trace ON operations(trace_id);
`
	_, err := s.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Append writes one record; TS defaults to now.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.TS == 0 {
		rec.TS = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (trace_id, ts, symbol, kind, leg, status, detail, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.TS, rec.Symbol, rec.Kind, rec.Leg, rec.Status, rec.Detail, rec.Error)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// BySymbol returns the newest records for symbol, newest first.
func (s *Store) BySymbol(ctx context.Context, symbol string, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, ts, symbol, kind, leg, status, detail, error
		 FROM operations WHERE symbol = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Recent returns the newest records across all symbols.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, ts, symbol, kind, leg, status, detail, error
		 FROM operations ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LastEntry returns the newest successful entry record for symbol, or nil.
func (s *Store) LastEntry(ctx context.Context, symbol string) (*Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, trace_id, ts, symbol, kind, leg, status, detail, error
		 FROM operations WHERE symbol = ? AND kind = ? AND status = ?
		 ORDER BY ts DESC, id DESC LIMIT 1`,
		symbol, KindEntry, StatusOK)
	var rec Record
	err := row.Scan(&rec.ID, &rec.TraceID, &rec.TS, &rec.Symbol, &rec.Kind, &rec.Leg, &rec.Status, &rec.Detail, &rec.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: last entry: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TraceID, &rec.TS, &rec.Symbol, &rec.Kind, &rec.Leg, &rec.Status, &rec.Detail, &rec.Error); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

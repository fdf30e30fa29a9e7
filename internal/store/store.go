// Package store handles SQLite persistence of guided-session results.
// The table is append-only: sessions are finalized once and never updated.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/0xlemi/riyaaz/internal/log"
	"github.com/0xlemi/riyaaz/internal/session"
)

// Store wraps SQLite access for practice results.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			log.Warn("failed to close db after migration failure", "error", cerr)
		}
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS guided_results (
			id INTEGER PRIMARY KEY,
			note TEXT NOT NULL,
			sung_at TEXT NOT NULL,
			accuracy_pct REAL NOT NULL,
			avg_cents REAL NOT NULL,
			hit INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_guided_results_sung_at ON guided_results(sung_at);`,
		`CREATE INDEX IF NOT EXISTS idx_guided_results_note ON guided_results(note);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendResults stores the per-note results of a completed session.
func (s *Store) AppendResults(ctx context.Context, results []session.NoteResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				log.Warn("failed to roll back results tx", "error", rerr)
			}
		}
	}()

	for _, r := range results {
		hit := 0
		if r.Hit {
			hit = 1
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO guided_results (note, sung_at, accuracy_pct, avg_cents, hit)
			 VALUES (?, ?, ?, ?, ?)`,
			r.Note,
			r.SungAt.Format(time.RFC3339Nano),
			r.Accuracy,
			r.AvgCents,
			hit,
		); err != nil {
			return fmt.Errorf("insert result for %s: %w", r.Note, err)
		}
	}
	return tx.Commit()
}

// Recent returns the most recent results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]session.NoteResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note, sung_at, accuracy_pct, avg_cents, hit
		 FROM guided_results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.NoteResult
	for rows.Next() {
		var r session.NoteResult
		var sungAt string
		var hit int
		if err := rows.Scan(&r.Note, &sungAt, &r.Accuracy, &r.AvgCents, &hit); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, sungAt); err == nil {
			r.SungAt = ts
		}
		r.Hit = hit != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// NoteSummary aggregates history for one scale degree.
type NoteSummary struct {
	Note        string
	Attempts    int
	Hits        int
	AvgAccuracy float64
}

// Summary aggregates all recorded attempts per note.
func (s *Store) Summary(ctx context.Context) ([]NoteSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note, COUNT(*), SUM(hit), AVG(accuracy_pct)
		 FROM guided_results GROUP BY note ORDER BY note`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NoteSummary
	for rows.Next() {
		var n NoteSummary
		if err := rows.Scan(&n.Note, &n.Attempts, &n.Hits, &n.AvgAccuracy); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

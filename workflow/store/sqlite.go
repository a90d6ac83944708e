package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps run history in a single-file database, which is the default for
// the command-line entry points. Use ":memory:" for tests.
//
// Schema:
//   - crew_runs: one summary row per run
//   - crew_turns: one row per message, unique on (run_id, seq)
type SQLiteStore struct {
	sqlStore
	path string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS crew_runs (
			run_id TEXT PRIMARY KEY,
			requirement TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			messages INTEGER NOT NULL DEFAULT 0,
			review_retries INTEGER NOT NULL DEFAULT 0,
			max_iterations INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL DEFAULT 0,
			finished_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS crew_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT 0,
			UNIQUE(run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crew_turns_run ON crew_turns(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_crew_runs_started ON crew_runs(started_at)`,
	},
	upsertRun: `
		INSERT INTO crew_runs (run_id, requirement, phase, reason, error, messages,
			review_retries, max_iterations, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			requirement = excluded.requirement,
			phase = excluded.phase,
			reason = excluded.reason,
			error = excluded.error,
			messages = excluded.messages,
			review_retries = excluded.review_retries,
			max_iterations = excluded.max_iterations,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
}

// NewSQLiteStore opens (creating if needed) the database at path.
//
//	st, err := store.NewSQLiteStore("./codecrew.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		sqlStore: sqlStore{db: db, dialect: sqliteDialect},
		path:     path,
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database location the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name      string
	schema    []string
	upsertRun string
}

// sqlStore implements Store over database/sql. SQLiteStore and MySQLStore
// embed it with their own dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	closed  bool
}

const insertTurn = `
	INSERT INTO crew_turns (run_id, seq, source, content, input_tokens, output_tokens, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectRunColumns = `
	SELECT run_id, requirement, phase, reason, error, messages, review_retries,
	       max_iterations, started_at, finished_at
	FROM crew_runs`

func (s *sqlStore) createTables(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: create schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveRun implements Store.
func (s *sqlStore) SaveRun(ctx context.Context, run RunRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.dialect.upsertRun,
		run.RunID, run.Requirement, run.Phase, run.Reason, run.Error,
		run.Messages, run.ReviewRetries, run.MaxIterations,
		toUnixNano(run.StartedAt), toUnixNano(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("%s: save run %s: %w", s.dialect.name, run.RunID, err)
	}
	return nil
}

// SaveTurn implements Store.
func (s *sqlStore) SaveTurn(ctx context.Context, turn Turn) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM crew_turns WHERE run_id = ? AND seq = ?", turn.RunID, turn.Seq,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: check turn: %w", s.dialect.name, err)
	}
	if exists > 0 {
		return ErrDuplicateTurn
	}

	_, err = s.db.ExecContext(ctx, insertTurn,
		turn.RunID, turn.Seq, turn.Source, turn.Content,
		turn.InputTokens, turn.OutputTokens, toUnixNano(turn.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("%s: save turn %s/%d: %w", s.dialect.name, turn.RunID, turn.Seq, err)
	}
	return nil
}

// LoadTranscript implements Store.
func (s *sqlStore) LoadTranscript(ctx context.Context, runID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, source, content, input_tokens, output_tokens, created_at
		FROM crew_turns WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("%s: load transcript: %w", s.dialect.name, err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var created int64
		if err := rows.Scan(&t.RunID, &t.Seq, &t.Source, &t.Content, &t.InputTokens, &t.OutputTokens, &created); err != nil {
			return nil, fmt.Errorf("%s: scan turn: %w", s.dialect.name, err)
		}
		t.CreatedAt = fromUnixNano(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate turns: %w", s.dialect.name, err)
	}

	if len(turns) == 0 {
		if _, err := s.loadRun(ctx, runID); err != nil {
			return nil, err
		}
	}
	return turns, nil
}

// LoadRun implements Store.
func (s *sqlStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return RunRecord{}, err
	}
	return s.loadRun(ctx, runID)
}

func (s *sqlStore) loadRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+" WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("%s: load run: %w", s.dialect.name, err)
	}
	return run, nil
}

// ListRuns implements Store.
func (s *sqlStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := selectRunColumns + " ORDER BY started_at DESC, run_id ASC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: list runs: %w", s.dialect.name, err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan run: %w", s.dialect.name, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close implements Store.
func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var r RunRecord
	var started, finished int64
	err := row.Scan(&r.RunID, &r.Requirement, &r.Phase, &r.Reason, &r.Error,
		&r.Messages, &r.ReviewRetries, &r.MaxIterations, &started, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	r.StartedAt = fromUnixNano(started)
	r.FinishedAt = fromUnixNano(finished)
	return r, nil
}

// Timestamps are stored as Unix nanoseconds so both drivers round-trip them
// without DSN flags. Zero time maps to 0.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

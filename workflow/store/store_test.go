package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save and load transcript in seq order", func(t *testing.T) {
		s := newStore(t)
		runID := uuid.NewString()

		if err := s.SaveRun(ctx, RunRecord{RunID: runID, Requirement: "Fibonacci", StartedAt: base}); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		for _, seq := range []int{2, 1, 3} {
			turn := Turn{
				RunID:       runID,
				Seq:         seq,
				Source:      fmt.Sprintf("role-%d", seq),
				Content:     fmt.Sprintf("message %d", seq),
				InputTokens: seq * 10,
				CreatedAt:   base.Add(time.Duration(seq) * time.Second),
			}
			if err := s.SaveTurn(ctx, turn); err != nil {
				t.Fatalf("SaveTurn(%d) failed: %v", seq, err)
			}
		}

		turns, err := s.LoadTranscript(ctx, runID)
		if err != nil {
			t.Fatalf("LoadTranscript failed: %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("expected 3 turns, got %d", len(turns))
		}
		for i, turn := range turns {
			if turn.Seq != i+1 {
				t.Errorf("turn %d has seq %d", i, turn.Seq)
			}
		}
		if turns[1].Content != "message 2" || turns[1].InputTokens != 20 {
			t.Errorf("unexpected turn contents %+v", turns[1])
		}
		if !turns[2].CreatedAt.Equal(base.Add(3 * time.Second)) {
			t.Errorf("created_at did not round-trip: %v", turns[2].CreatedAt)
		}
	})

	t.Run("duplicate turn is rejected", func(t *testing.T) {
		s := newStore(t)
		runID := uuid.NewString()
		turn := Turn{RunID: runID, Seq: 1, Source: "user", Content: "req"}

		if err := s.SaveTurn(ctx, turn); err != nil {
			t.Fatalf("first SaveTurn failed: %v", err)
		}
		if err := s.SaveTurn(ctx, turn); !errors.Is(err, ErrDuplicateTurn) {
			t.Errorf("expected ErrDuplicateTurn, got %v", err)
		}
	})

	t.Run("unknown run is not found", func(t *testing.T) {
		s := newStore(t)

		if _, err := s.LoadTranscript(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadTranscript: expected ErrNotFound, got %v", err)
		}
		if _, err := s.LoadRun(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadRun: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("known run without turns has empty transcript", func(t *testing.T) {
		s := newStore(t)
		runID := uuid.NewString()
		_ = s.SaveRun(ctx, RunRecord{RunID: runID, Requirement: "x", StartedAt: base})

		turns, err := s.LoadTranscript(ctx, runID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("expected empty transcript, got %d", len(turns))
		}
	})

	t.Run("save run upserts summary", func(t *testing.T) {
		s := newStore(t)
		runID := uuid.NewString()

		start := RunRecord{RunID: runID, Requirement: "Fibonacci", Phase: "Analyzing", MaxIterations: 20, StartedAt: base}
		if err := s.SaveRun(ctx, start); err != nil {
			t.Fatalf("SaveRun start failed: %v", err)
		}
		run, err := s.LoadRun(ctx, runID)
		if err != nil {
			t.Fatalf("LoadRun failed: %v", err)
		}
		if run.Finished() {
			t.Error("expected unfinished run")
		}

		done := start
		done.Phase = "Completed"
		done.Reason = "CompletionSignal"
		done.Messages = 8
		done.ReviewRetries = 1
		done.FinishedAt = base.Add(time.Minute)
		if err := s.SaveRun(ctx, done); err != nil {
			t.Fatalf("SaveRun finish failed: %v", err)
		}

		run, err = s.LoadRun(ctx, runID)
		if err != nil {
			t.Fatalf("LoadRun failed: %v", err)
		}
		if run.Reason != "CompletionSignal" || run.Messages != 8 || run.ReviewRetries != 1 {
			t.Errorf("summary not updated: %+v", run)
		}
		if !run.Finished() || !run.FinishedAt.Equal(base.Add(time.Minute)) {
			t.Errorf("finished_at not stored: %v", run.FinishedAt)
		}
		if run.MaxIterations != 20 || run.Requirement != "Fibonacci" {
			t.Errorf("unexpected summary %+v", run)
		}
	})

	t.Run("list runs newest first with limit", func(t *testing.T) {
		s := newStore(t)
		prefix := uuid.NewString()[:8]
		now := time.Now()
		for i := 0; i < 3; i++ {
			err := s.SaveRun(ctx, RunRecord{
				RunID:       fmt.Sprintf("%s-%d", prefix, i),
				Requirement: "req",
				StartedAt:   now.Add(time.Duration(i+1) * time.Hour),
			})
			if err != nil {
				t.Fatalf("SaveRun failed: %v", err)
			}
		}

		runs, err := s.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].RunID != prefix+"-2" || runs[1].RunID != prefix+"-1" {
			t.Errorf("unexpected order: %s, %s", runs[0].RunID, runs[1].RunID)
		}
	})

	t.Run("closed store rejects writes", func(t *testing.T) {
		s := newStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := s.SaveRun(ctx, RunRecord{RunID: "x"}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestMemStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s := NewMemStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemStore_ContextCancelled(t *testing.T) {
	s := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.SaveTurn(ctx, Turn{RunID: "r", Seq: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "codecrew.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if s.Path() != path {
		t.Errorf("expected path %q, got %q", path, s.Path())
	}
	_ = s.SaveRun(ctx, RunRecord{RunID: "run-1", Requirement: "Fibonacci", StartedAt: time.Now()})
	_ = s.SaveTurn(ctx, Turn{RunID: "run-1", Seq: 1, Source: "user", Content: "Fibonacci"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	turns, err := reopened.LoadTranscript(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadTranscript failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "Fibonacci" {
		t.Errorf("unexpected transcript after reopen: %+v", turns)
	}
}

// TestMySQLStore runs the contract suite against a real server.
//
// export TEST_MYSQL_DSN="user:password@tcp(localhost:3306)/test_db"
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL test: set TEST_MYSQL_DSN to run")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("NewMySQLStore failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewMySQLStore_BadDSN(t *testing.T) {
	if _, err := NewMySQLStore("not a dsn"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

// Package store provides persistence for workflow transcripts.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrDuplicateTurn is returned when a turn with the same run ID and sequence
// number was already saved. Conversation messages are immutable.
var ErrDuplicateTurn = errors.New("turn already recorded")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists workflow runs and their message transcripts.
//
// A coordinator calls SaveRun when a run starts and again when it
// terminates, and SaveTurn once per message in conversation order. The
// coordinator never reads from the store; LoadTranscript, LoadRun and
// ListRuns serve the presentation layer.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun inserts or replaces the summary row for run.RunID.
	SaveRun(ctx context.Context, run RunRecord) error

	// SaveTurn appends one message. Returns ErrDuplicateTurn if
	// (RunID, Seq) already exists.
	SaveTurn(ctx context.Context, turn Turn) error

	// LoadTranscript returns every turn of a run ordered by Seq.
	// Returns ErrNotFound if the run is unknown.
	LoadTranscript(ctx context.Context, runID string) ([]Turn, error)

	// LoadRun returns the summary for runID, or ErrNotFound.
	LoadRun(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns returns up to limit runs, most recently started first.
	// limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Close releases resources held by the store.
	Close() error
}

// Turn is one persisted conversation message.
type Turn struct {
	RunID        string
	Seq          int
	Source       string
	Content      string
	InputTokens  int
	OutputTokens int
	CreatedAt    time.Time
}

// RunRecord summarizes one workflow run.
type RunRecord struct {
	RunID         string
	Requirement   string
	Phase         string
	Reason        string
	Error         string
	Messages      int
	ReviewRetries int
	MaxIterations int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Finished reports whether the run has terminated.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

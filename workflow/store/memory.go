package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. Data is lost when the process exits.
// It is the default store of the interactive UI, where session history only
// needs to outlive a single run.
type MemStore struct {
	mu     sync.RWMutex
	runs   map[string]RunRecord
	turns  map[string][]Turn
	closed bool
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:  make(map[string]RunRecord),
		turns: make(map[string][]Turn),
	}
}

// SaveRun implements Store.
func (m *MemStore) SaveRun(ctx context.Context, run RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.runs[run.RunID] = run
	return nil
}

// SaveTurn implements Store.
func (m *MemStore) SaveTurn(ctx context.Context, turn Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	for _, existing := range m.turns[turn.RunID] {
		if existing.Seq == turn.Seq {
			return ErrDuplicateTurn
		}
	}
	m.turns[turn.RunID] = append(m.turns[turn.RunID], turn)
	return nil
}

// LoadTranscript implements Store.
func (m *MemStore) LoadTranscript(ctx context.Context, runID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	turns, ok := m.turns[runID]
	if !ok {
		if _, known := m.runs[runID]; !known {
			return nil, ErrNotFound
		}
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// LoadRun implements Store.
func (m *MemStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return RunRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return RunRecord{}, ErrClosed
	}

	run, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return run, nil
}

// ListRuns implements Store.
func (m *MemStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Store.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

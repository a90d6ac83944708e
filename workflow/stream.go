package workflow

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"
)

// Outcome is the result of a finished run.
type Outcome struct {
	RunID       string
	Requirement string
	// Conversation is every message produced, seed included.
	Conversation []Message
	// State is the terminal state.
	State State
	// Err is the *InvokerError, selector error or context error that ended
	// the run, or nil.
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Completed reports whether the run ended successfully.
func (o Outcome) Completed() bool {
	return o.State.Phase == PhaseCompleted
}

// Duration returns the wall time of the run.
func (o Outcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Run is a validated requirement bound to a coordinator. Each call to
// Stream starts a fresh conversation.
type Run struct {
	c           *Coordinator
	requirement string

	mu      sync.Mutex
	outcome Outcome
}

// NewRun validates requirement. A blank requirement returns
// ErrEmptyRequirement and no role is ever invoked.
func (c *Coordinator) NewRun(requirement string) (*Run, error) {
	if strings.TrimSpace(requirement) == "" {
		return nil, ErrEmptyRequirement
	}
	return &Run{
		c:           c,
		requirement: requirement,
		outcome:     Outcome{Requirement: requirement, State: c.initialState()},
	}, nil
}

// Requirement returns the requirement the run was created with.
func (r *Run) Requirement() string { return r.requirement }

// Stream returns the conversation as it is produced. The first element is
// the seed user message; every further element is yielded as soon as its
// role's turn completes, paired with the state after that message. The
// sequence ends when the run terminates. Breaking out of the loop stops
// the run with ReasonCancelled.
//
// The sequence is lazy and restartable: nothing runs until it is ranged
// over, and each range is an independent run.
func (r *Run) Stream(ctx context.Context) iter.Seq2[Message, State] {
	return func(yield func(Message, State) bool) {
		out := r.c.execute(ctx, r.requirement, yield)
		r.mu.Lock()
		r.outcome = out
		r.mu.Unlock()
	}
}

// Outcome returns the result of the most recently finished stream. Before
// any stream finishes it holds the requirement and the initial state.
func (r *Run) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

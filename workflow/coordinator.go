// Package workflow drives a bounded, multi-role hand-off conversation.
//
// A Coordinator owns a Registry of roles and an Invoker that produces each
// role's reply. Starting from a user requirement it walks the phases
//
//	Analyzing -> Coding -> Reviewing -> (Coding | Documenting) -> Testing
//	-> Deploying -> GeneratingUI -> Completed
//
// appending one message per turn. A run ends when a role emits the
// completion token, when the conversation reaches MaxIterations messages,
// when a turn fails after its retries, when the selector ends it, or when
// the caller cancels.
//
//	c, err := workflow.New(workflow.DefaultRegistry(), workflow.NewModelInvoker(m))
//	run, err := c.NewRun("Build a Fibonacci service")
//	for msg, state := range run.Stream(ctx) {
//	    fmt.Printf("%d %s (%s)\n", msg.Seq, msg.Source, state.Phase)
//	}
//	outcome := run.Outcome()
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/codecrew/workflow/emit"
	"github.com/dshills/codecrew/workflow/model"
	"github.com/dshills/codecrew/workflow/store"
	"github.com/google/uuid"
)

// Coordinator runs hand-off workflows over a fixed role registry. It holds
// no per-run state and is safe for concurrent use; every run gets a fresh
// conversation.
type Coordinator struct {
	registry *Registry
	invoker  Invoker
	cfg      coordinatorConfig
}

// New returns a Coordinator. The registry must contain every canonical role.
func New(registry *Registry, invoker Invoker, opts ...Option) (*Coordinator, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if invoker == nil {
		return nil, ErrNilInvoker
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &Coordinator{registry: registry, invoker: invoker, cfg: cfg}, nil
}

// Registry returns the coordinator's role registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// MaxIterations returns the configured message budget.
func (c *Coordinator) MaxIterations() int { return c.cfg.maxIterations }

// Run executes one workflow to termination. The returned error is non-nil
// only when the requirement is rejected before any role is invoked; how the
// run ended is reported in Outcome.State.Reason and Outcome.Err.
func (c *Coordinator) Run(ctx context.Context, requirement string) (Outcome, error) {
	run, err := c.NewRun(requirement)
	if err != nil {
		return Outcome{
			Requirement: requirement,
			State:       c.initialState(),
		}, err
	}
	for range run.Stream(ctx) {
	}
	return run.Outcome(), nil
}

func (c *Coordinator) initialState() State {
	return State{
		Phase:         PhaseAnalyzing,
		Role:          PhaseAnalyzing.RoleName(),
		MaxIterations: c.cfg.maxIterations,
	}
}

// execution is the mutable state of one run. It is confined to the
// goroutine ranging over the stream.
type execution struct {
	c           *Coordinator
	runID       string
	requirement string
	conv        Conversation
	state       State
	startedAt   time.Time
	logger      *slog.Logger
}

func (c *Coordinator) execute(ctx context.Context, requirement string, yield func(Message, State) bool) Outcome {
	ex := &execution{
		c:           c,
		runID:       uuid.NewString(),
		requirement: requirement,
		state:       c.initialState(),
		startedAt:   time.Now(),
	}
	ex.logger = c.cfg.logger.With("run_id", ex.runID)
	ex.started(ctx)

	seed := ex.conv.append(Message{
		Source:    SourceUser,
		Content:   c.cfg.template(requirement, c.cfg.maxIterations, c.cfg.completionToken),
		CreatedAt: time.Now(),
	})
	ex.state.Iteration = ex.conv.Len()
	ex.saveTurn(ctx, seed)
	if !yield(seed, ex.state) {
		return ex.finish(ctx, ReasonCancelled, nil)
	}

	for {
		if err := ctx.Err(); err != nil {
			return ex.finish(ctx, ReasonCancelled, err)
		}

		role, ok := c.registry.Lookup(ex.state.Role)
		if !ok {
			return ex.finish(ctx, ReasonSelectorError, fmt.Errorf("%w: %q", ErrUnknownRole, ex.state.Role))
		}

		out, err := ex.invoke(ctx, role)
		if err != nil {
			if ctx.Err() != nil {
				return ex.finish(ctx, ReasonCancelled, ctx.Err())
			}
			return ex.finish(ctx, ReasonInvokerError, err)
		}

		msg := ex.conv.append(Message{
			Source:    role.Name,
			Content:   out.Text,
			Usage:     out.Usage,
			CreatedAt: time.Now(),
		})
		ex.state.Iteration = ex.conv.Len()
		ex.saveTurn(ctx, msg)

		reason := ReasonNone
		switch {
		case strings.Contains(msg.Content, c.cfg.completionToken):
			reason = ReasonCompletionSignal
		case ex.state.Iteration >= ex.state.MaxIterations:
			reason = ReasonMaxMessages
		}
		if reason != ReasonNone {
			ex.terminate(reason)
			yield(msg, ex.state)
			return ex.finish(ctx, reason, nil)
		}

		if !yield(msg, ex.state) {
			return ex.finish(ctx, ReasonCancelled, nil)
		}

		if reason, err := ex.advance(ctx, msg); reason != ReasonNone {
			if reason == ReasonSelectorError && ctx.Err() != nil {
				return ex.finish(ctx, ReasonCancelled, ctx.Err())
			}
			return ex.finish(ctx, reason, err)
		}
	}
}

// advance asks the selector for the next speaker and moves the state there.
// It returns a termination reason when the run must stop.
func (ex *execution) advance(ctx context.Context, last Message) (TerminationReason, error) {
	c := ex.c
	dec, err := c.cfg.selector.Next(ctx, ex.state, last, c.registry)
	if err != nil {
		return ReasonSelectorError, fmt.Errorf("select next speaker: %w", err)
	}
	if dec.Terminate {
		if dec.Reason == ReasonNone {
			return ReasonSelectorVerdict, nil
		}
		return dec.Reason, nil
	}

	dec, charged := applyReviewBudget(ex.state, dec)
	phase, name, err := resolveDecision(ex.state, dec, c.registry)
	if err != nil {
		return ReasonSelectorError, err
	}

	if charged {
		ex.state.ReviewRetries++
		c.cfg.metrics.IncrementReviewRetries()
		ex.emit(emit.MsgReviewRetry, last.Source, map[string]interface{}{
			"review_retries": ex.state.ReviewRetries,
			"budget":         ex.state.ReviewBudget(),
		})
	}
	ex.state.Phase = phase
	ex.state.Role = name
	return ReasonNone, nil
}

// invoke runs one turn of role under the retry policy.
func (ex *execution) invoke(ctx context.Context, role Role) (model.ChatOut, error) {
	c := ex.c
	policy := c.cfg.retry
	history := ex.conv.Messages()
	start := time.Now()

	ex.emit(emit.MsgTurnStarted, role.Name, map[string]interface{}{"phase": ex.state.Phase.String()})

	for attempt := 1; ; attempt++ {
		out, kind, err := invokeWithTimeout(ctx, c.invoker, role, history, c.cfg.turnTimeout)
		if err == nil {
			ex.turnCompleted(role, out, attempt, time.Since(start))
			return out, nil
		}
		if ctx.Err() != nil {
			return model.ChatOut{}, ctx.Err()
		}

		if attempt >= policy.MaxAttempts || !policy.retryable(err) {
			status := "error"
			if kind == KindTimeout {
				status = "timeout"
			}
			c.cfg.metrics.RecordTurn(role.Name, status, time.Since(start))
			ex.emit(emit.MsgTurnFailed, role.Name, map[string]interface{}{
				"phase":   ex.state.Phase.String(),
				"attempt": attempt,
				"kind":    kind.String(),
				"error":   err.Error(),
			})
			return model.ChatOut{}, &InvokerError{Role: role.Name, Kind: kind, Attempts: attempt, Cause: err}
		}

		c.cfg.metrics.IncrementRetries(role.Name, kind)
		ex.emit(emit.MsgTurnRetry, role.Name, map[string]interface{}{
			"attempt": attempt,
			"kind":    kind.String(),
			"error":   err.Error(),
		})
		ex.logger.InfoContext(ctx, "retrying turn", "role", role.Name, "attempt", attempt, "kind", kind.String(), "error", err)

		if err := sleepContext(ctx, computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay, nil)); err != nil {
			return model.ChatOut{}, err
		}
	}
}

func (ex *execution) turnCompleted(role Role, out model.ChatOut, attempt int, elapsed time.Duration) {
	c := ex.c
	c.cfg.metrics.RecordTurn(role.Name, "success", elapsed)
	c.cfg.metrics.RecordTokens(role.Name, out.Usage.InputTokens, out.Usage.OutputTokens)

	meta := map[string]interface{}{
		"phase":         ex.state.Phase.String(),
		"attempt":       attempt,
		"duration_ms":   elapsed.Milliseconds(),
		"input_tokens":  out.Usage.InputTokens,
		"output_tokens": out.Usage.OutputTokens,
	}
	if out.Model != "" {
		meta["model"] = out.Model
	}
	if c.cfg.costs != nil {
		meta["cost_usd"] = c.cfg.costs.Record(ex.runID, role.Name, out.Model, out.Usage)
	}
	ex.emit(emit.MsgTurnCompleted, role.Name, meta)
}

func (ex *execution) terminate(reason TerminationReason) {
	ex.state.Terminated = true
	ex.state.Reason = reason
	ex.state.Phase = reason.terminalPhase()
}

func (ex *execution) started(ctx context.Context) {
	c := ex.c
	c.cfg.metrics.RunStarted()
	ex.emit(emit.MsgRunStarted, "", map[string]interface{}{
		"max_iterations": c.cfg.maxIterations,
	})
	ex.logger.InfoContext(ctx, "run started", "max_iterations", c.cfg.maxIterations)
	ex.saveRun(ctx, time.Time{}, nil)
}

// finish records the terminal state and builds the outcome.
func (ex *execution) finish(ctx context.Context, reason TerminationReason, err error) Outcome {
	c := ex.c
	if !ex.state.Terminated {
		ex.terminate(reason)
	}
	finishedAt := time.Now()

	c.cfg.metrics.RunFinished(ex.state.Reason)

	meta := map[string]interface{}{
		"reason":         ex.state.Reason.String(),
		"phase":          ex.state.Phase.String(),
		"messages":       ex.conv.Len(),
		"review_retries": ex.state.ReviewRetries,
	}
	attrs := []any{
		"reason", ex.state.Reason.String(),
		"messages", ex.conv.Len(),
		"review_retries", ex.state.ReviewRetries,
		"duration", finishedAt.Sub(ex.startedAt),
	}
	if err != nil {
		meta["error"] = err.Error()
		ex.logger.WarnContext(ctx, "run aborted", append(attrs, "error", err)...)
	} else {
		ex.logger.InfoContext(ctx, "run finished", attrs...)
	}
	ex.emit(emit.MsgRunTerminated, "", meta)
	ex.saveRun(ctx, finishedAt, err)

	return Outcome{
		RunID:        ex.runID,
		Requirement:  ex.requirement,
		Conversation: ex.conv.Messages(),
		State:        ex.state,
		Err:          err,
		StartedAt:    ex.startedAt,
		FinishedAt:   finishedAt,
	}
}

func (ex *execution) emit(msg, role string, meta map[string]interface{}) {
	ex.c.cfg.emitter.Emit(emit.Event{
		RunID: ex.runID,
		Seq:   ex.conv.Len(),
		Role:  role,
		Msg:   msg,
		Meta:  meta,
	})
}

// saveTurn persists msg. Store writes outlive cancellation of the run so
// an abandoned run still leaves a complete transcript.
func (ex *execution) saveTurn(ctx context.Context, msg Message) {
	s := ex.c.cfg.store
	if s == nil {
		return
	}
	err := s.SaveTurn(context.WithoutCancel(ctx), store.Turn{
		RunID:        ex.runID,
		Seq:          msg.Seq,
		Source:       msg.Source,
		Content:      msg.Content,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		CreatedAt:    msg.CreatedAt,
	})
	if err != nil {
		ex.logger.ErrorContext(ctx, "save turn", "seq", msg.Seq, "error", err)
	}
}

func (ex *execution) saveRun(ctx context.Context, finishedAt time.Time, runErr error) {
	s := ex.c.cfg.store
	if s == nil {
		return
	}
	rec := store.RunRecord{
		RunID:         ex.runID,
		Requirement:   ex.requirement,
		Phase:         ex.state.Phase.String(),
		Reason:        ex.state.Reason.String(),
		Messages:      ex.conv.Len(),
		ReviewRetries: ex.state.ReviewRetries,
		MaxIterations: ex.state.MaxIterations,
		StartedAt:     ex.startedAt,
		FinishedAt:    finishedAt,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := s.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		ex.logger.ErrorContext(ctx, "save run", "error", err)
	}
}

package workflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/codecrew/workflow/emit"
	"github.com/dshills/codecrew/workflow/store"
)

// DefaultMaxIterations is the message budget used when none is configured.
const DefaultMaxIterations = 20

// MinMaxIterations is the smallest usable budget: the seed message plus
// analysis, coding and review.
const MinMaxIterations = 4

// Option configures a Coordinator.
//
//	c, err := workflow.New(workflow.DefaultRegistry(), invoker,
//	    workflow.WithMaxIterations(30),
//	    workflow.WithTurnTimeout(2*time.Minute),
//	    workflow.WithRetryPolicy(workflow.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}),
//	)
type Option func(*coordinatorConfig) error

type coordinatorConfig struct {
	maxIterations   int
	completionToken string
	selector        Selector
	retry           RetryPolicy
	turnTimeout     time.Duration
	emitter         emit.Emitter
	store           store.Store
	metrics         *PrometheusMetrics
	costs           *CostTracker
	logger          *slog.Logger
	template        TaskTemplate
}

func defaultConfig() coordinatorConfig {
	return coordinatorConfig{
		maxIterations:   DefaultMaxIterations,
		completionToken: DefaultCompletionToken,
		selector:        LinearSelector{},
		retry:           DefaultRetryPolicy(),
		emitter:         emit.NewNullEmitter(),
		logger:          slog.Default(),
		template:        DefaultTaskTemplate,
	}
}

// WithMaxIterations caps the conversation length, seed message included.
// The review retry budget is n - 4.
//
// Default: 20. Must be at least 4.
func WithMaxIterations(n int) Option {
	return func(cfg *coordinatorConfig) error {
		if n < MinMaxIterations {
			return fmt.Errorf("%w: got %d", ErrInvalidMaxIterations, n)
		}
		cfg.maxIterations = n
		return nil
	}
}

// WithCompletionToken sets the literal that completes a run when a role
// message contains it.
//
// Default: WORKFLOW_COMPLETE.
func WithCompletionToken(token string) Option {
	return func(cfg *coordinatorConfig) error {
		if token == "" {
			return fmt.Errorf("completion token must not be empty")
		}
		cfg.completionToken = token
		return nil
	}
}

// WithSelector replaces the next-speaker policy.
//
// Default: LinearSelector with DefaultReviewSignal.
func WithSelector(sel Selector) Option {
	return func(cfg *coordinatorConfig) error {
		if sel == nil {
			return fmt.Errorf("selector must not be nil")
		}
		cfg.selector = sel
		return nil
	}
}

// WithRetryPolicy sets how failed turns are retried.
//
// Default: a single attempt.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *coordinatorConfig) error {
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.retry = p
		return nil
	}
}

// WithTurnTimeout bounds each invocation attempt. An attempt that exceeds d
// fails with KindTimeout and is subject to the retry policy.
//
// Default: 0, no per-turn timeout. A hung provider then stalls the run
// until the caller cancels its context.
func WithTurnTimeout(d time.Duration) Option {
	return func(cfg *coordinatorConfig) error {
		if d < 0 {
			return fmt.Errorf("turn timeout must not be negative")
		}
		cfg.turnTimeout = d
		return nil
	}
}

// WithEmitter receives workflow events.
//
// Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *coordinatorConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithStore persists every message and the run summary. Store failures
// are logged and never stop a run.
func WithStore(s store.Store) Option {
	return func(cfg *coordinatorConfig) error {
		cfg.store = s
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *coordinatorConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithCostTracker attributes token spend per run, role and model.
func WithCostTracker(t *CostTracker) Option {
	return func(cfg *coordinatorConfig) error {
		cfg.costs = t
		return nil
	}
}

// WithLogger sets the logger for run lifecycle and store errors.
//
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cfg *coordinatorConfig) error {
		if l != nil {
			cfg.logger = l
		}
		return nil
	}
}

// WithTaskTemplate replaces the rendering of the seed user message.
func WithTaskTemplate(t TaskTemplate) Option {
	return func(cfg *coordinatorConfig) error {
		if t == nil {
			return fmt.Errorf("task template must not be nil")
		}
		cfg.template = t
		return nil
	}
}

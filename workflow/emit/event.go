package emit

// Event names emitted by the workflow coordinator.
const (
	MsgRunStarted    = "run_started"
	MsgTurnStarted   = "turn_started"
	MsgTurnCompleted = "turn_completed"
	MsgTurnRetry     = "turn_retry"
	MsgTurnFailed    = "turn_failed"
	MsgReviewRetry   = "review_retry"
	MsgRunTerminated = "run_terminated"
)

// Event represents an observability event emitted during a workflow run.
//
// Events are emitted to an Emitter which can:
//   - Log through slog
//   - Send to OpenTelemetry
//   - Buffer in memory for tests and the interactive UI
type Event struct {
	// RunID identifies the workflow run that emitted this event.
	RunID string

	// Seq is the conversation length when the event was emitted.
	// Zero for events emitted before the seed message.
	Seq int

	// Role names the participant the event concerns.
	// Empty string for run-level events.
	Role string

	// Msg is the event name, one of the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "phase": Workflow phase name
	//   - "duration_ms": Turn duration in milliseconds
	//   - "error": Error details
	//   - "attempt": Invocation attempt number (1-based)
	//   - "input_tokens", "output_tokens": Token usage of the turn
	//   - "reason": Termination reason
	Meta map[string]interface{}
}

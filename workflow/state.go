package workflow

// Phase is a state of the hand-off workflow.
type Phase int

const (
	PhaseAnalyzing Phase = iota
	PhaseCoding
	PhaseReviewing
	PhaseDocumenting
	PhaseTesting
	PhaseDeploying
	PhaseGeneratingUI
	PhaseCompleted
	PhaseAborted
)

var phaseNames = [...]string{
	PhaseAnalyzing:    "Analyzing",
	PhaseCoding:       "Coding",
	PhaseReviewing:    "Reviewing",
	PhaseDocumenting:  "Documenting",
	PhaseTesting:      "Testing",
	PhaseDeploying:    "Deploying",
	PhaseGeneratingUI: "GeneratingUI",
	PhaseCompleted:    "Completed",
	PhaseAborted:      "Aborted",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// RoleName returns the canonical role bound to p, or "" for terminal phases.
func (p Phase) RoleName() string {
	if p < PhaseAnalyzing || p > PhaseGeneratingUI {
		return ""
	}
	return canonicalOrder[p]
}

// PhaseForRole returns the phase a canonical role is bound to.
func PhaseForRole(name string) (Phase, bool) {
	for i, n := range canonicalOrder {
		if n == name {
			return Phase(i), true
		}
	}
	return 0, false
}

// TerminationReason records why a run stopped.
type TerminationReason int

const (
	ReasonNone TerminationReason = iota
	// ReasonMaxMessages: the conversation reached MaxIterations messages.
	ReasonMaxMessages
	// ReasonCompletionSignal: a role emitted the completion token.
	ReasonCompletionSignal
	// ReasonInvokerError: a turn failed after the retry policy was exhausted.
	ReasonInvokerError
	// ReasonCancelled: the context was cancelled or the consumer stopped reading.
	ReasonCancelled
	// ReasonSelectorVerdict: the selector chose to end the run.
	ReasonSelectorVerdict
	// ReasonSelectorError: the selector failed or named an unknown role.
	ReasonSelectorError
)

var reasonNames = [...]string{
	ReasonNone:             "",
	ReasonMaxMessages:      "MaxMessages",
	ReasonCompletionSignal: "CompletionSignal",
	ReasonInvokerError:     "InvokerError",
	ReasonCancelled:        "Cancelled",
	ReasonSelectorVerdict:  "SelectorVerdict",
	ReasonSelectorError:    "SelectorError",
}

func (r TerminationReason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "Unknown"
	}
	return reasonNames[r]
}

// terminalPhase maps a reason to the phase a run ends in.
func (r TerminationReason) terminalPhase() Phase {
	switch r {
	case ReasonCompletionSignal, ReasonSelectorVerdict:
		return PhaseCompleted
	default:
		return PhaseAborted
	}
}

// State is a snapshot of a run's workflow state.
type State struct {
	// Phase is the current phase; Completed or Aborted once terminated.
	Phase Phase
	// Role is the role that acts next, or the role that produced the
	// latest message once terminated.
	Role string
	// Iteration is the number of messages in the conversation.
	Iteration int
	// ReviewRetries counts Reviewing -> Coding hand-backs.
	ReviewRetries int
	MaxIterations int
	Terminated    bool
	Reason        TerminationReason
}

// ReviewBudget is the maximum number of review retries: MaxIterations - 4,
// one slot reserved for each role after review.
func (s State) ReviewBudget() int {
	return s.MaxIterations - 4
}

// ReviewRetriesLeft returns how many more review retries are allowed.
func (s State) ReviewRetriesLeft() int {
	if left := s.ReviewBudget() - s.ReviewRetries; left > 0 {
		return left
	}
	return 0
}

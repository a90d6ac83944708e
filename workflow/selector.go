package workflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/codecrew/workflow/model"
)

// TerminateVerdict is the reply a model or script gives to end the run.
const TerminateVerdict = "TERMINATE"

// Decision is a selector's choice of the next speaker.
type Decision struct {
	// Phase the run moves to. Ignored when Role names a non-canonical role;
	// the run then stays in its current phase.
	Phase Phase
	// Role to invoke next. Empty means the role bound to Phase.
	Role string
	// Terminate ends the run instead of invoking a role.
	Terminate bool
	// Reason recorded when Terminate is set. ReasonNone is recorded as
	// ReasonSelectorVerdict.
	Reason TerminationReason
}

// Selector picks the next speaker after every message. It receives the state
// after the latest message was appended.
type Selector interface {
	Next(ctx context.Context, state State, last Message, registry *Registry) (Decision, error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context, state State, last Message, registry *Registry) (Decision, error)

// Next calls f.
func (f SelectorFunc) Next(ctx context.Context, state State, last Message, registry *Registry) (Decision, error) {
	return f(ctx, state, last, registry)
}

// ReviewSignal reports whether a reviewer message requests another coding pass.
type ReviewSignal func(content string) bool

var needsImprovementPattern = regexp.MustCompile(`(?i)needs[ _]improvement`)

// DefaultReviewSignal matches NEEDS_IMPROVEMENT or "needs improvement" in
// any letter case.
func DefaultReviewSignal(content string) bool {
	return needsImprovementPattern.MatchString(content)
}

// LinearSelector is the default hand-off policy:
//
//	Analyzing -> Coding -> Reviewing -> (Coding | Documenting) -> Testing
//	-> Deploying -> GeneratingUI
//
// Reviewing goes back to Coding while Signal matches the review and the
// review budget is not spent. GeneratingUI keeps the UI role selected until
// the completion token or the message budget ends the run.
type LinearSelector struct {
	// Signal detects improvement requests. Nil uses DefaultReviewSignal.
	Signal ReviewSignal
}

// Next implements Selector.
func (s LinearSelector) Next(_ context.Context, state State, last Message, _ *Registry) (Decision, error) {
	return s.next(state, last), nil
}

func (s LinearSelector) next(state State, last Message) Decision {
	switch state.Phase {
	case PhaseAnalyzing:
		return phaseDecision(PhaseCoding)
	case PhaseCoding:
		return phaseDecision(PhaseReviewing)
	case PhaseReviewing:
		signal := s.Signal
		if signal == nil {
			signal = DefaultReviewSignal
		}
		if signal(last.Content) && state.ReviewRetries < state.ReviewBudget() {
			return phaseDecision(PhaseCoding)
		}
		return phaseDecision(PhaseDocumenting)
	case PhaseDocumenting:
		return phaseDecision(PhaseTesting)
	case PhaseTesting:
		return phaseDecision(PhaseDeploying)
	case PhaseDeploying, PhaseGeneratingUI:
		return phaseDecision(PhaseGeneratingUI)
	default:
		return Decision{Phase: state.Phase, Terminate: true, Reason: state.Reason}
	}
}

func phaseDecision(p Phase) Decision {
	return Decision{Phase: p, Role: p.RoleName()}
}

// applyReviewBudget charges a Reviewing -> Coding hand-back against the
// review budget. Once the budget is spent the decision is moved forward to
// Documenting. It reports whether a retry was charged.
func applyReviewBudget(state State, dec Decision) (Decision, bool) {
	if dec.Terminate || state.Phase != PhaseReviewing {
		return dec, false
	}
	target := dec.Phase
	if dec.Role != "" {
		p, ok := PhaseForRole(dec.Role)
		if !ok {
			return dec, false
		}
		target = p
	}
	if target != PhaseCoding {
		return dec, false
	}
	if state.ReviewRetries < state.ReviewBudget() {
		return dec, true
	}
	return phaseDecision(PhaseDocumenting), false
}

// resolveDecision turns a decision into the next phase and role.
func resolveDecision(state State, dec Decision, registry *Registry) (Phase, string, error) {
	name := dec.Role
	if name == "" {
		name = dec.Phase.RoleName()
		if name == "" {
			return 0, "", fmt.Errorf("%w: no role bound to phase %s", ErrUnknownRole, dec.Phase)
		}
	}
	if _, ok := registry.Lookup(name); !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	if phase, ok := PhaseForRole(name); ok {
		return phase, name, nil
	}
	return state.Phase, name, nil
}

// ModelSelector asks a chat model to name the next speaker. Replies that
// name no registered role fall back to Fallback.
type ModelSelector struct {
	Model model.ChatModel
	// Fallback decides when the reply names no role. Nil uses LinearSelector.
	Fallback Selector
	// Instructions is appended to the selection prompt.
	Instructions string
}

// NewModelSelector returns a ModelSelector with a linear fallback.
func NewModelSelector(m model.ChatModel) *ModelSelector {
	return &ModelSelector{Model: m, Fallback: LinearSelector{}}
}

// Next implements Selector.
func (s *ModelSelector) Next(ctx context.Context, state State, last Message, registry *Registry) (Decision, error) {
	out, err := s.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: s.prompt(state, registry)},
		{Role: model.RoleUser, Content: fmt.Sprintf("[%s]: %s", last.Source, last.Content)},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("model selector: %w", err)
	}

	reply := strings.TrimSpace(out.Text)
	if strings.EqualFold(reply, TerminateVerdict) {
		return Decision{Phase: PhaseCompleted, Terminate: true, Reason: ReasonSelectorVerdict}, nil
	}
	if name := matchRoleName(reply, registry); name != "" {
		phase, ok := PhaseForRole(name)
		if !ok {
			phase = state.Phase
		}
		return Decision{Phase: phase, Role: name}, nil
	}

	fallback := s.Fallback
	if fallback == nil {
		fallback = LinearSelector{}
	}
	return fallback.Next(ctx, state, last, registry)
}

func (s *ModelSelector) prompt(state State, registry *Registry) string {
	var sb strings.Builder
	sb.WriteString("You are coordinating a software development team. The following roles are available:\n\n")
	for _, role := range registry.OrderedRoles() {
		fmt.Fprintf(&sb, "%s: %s\n", role.Name, role.Description)
	}
	fmt.Fprintf(&sb, "\nThe current phase is %s. %d of %d messages have been used; the reviewer has requested %d of %d allowed improvements.\n",
		state.Phase, state.Iteration, state.MaxIterations, state.ReviewRetries, state.ReviewBudget())
	sb.WriteString("Read the latest message and reply with only the name of the role that should speak next, ")
	sb.WriteString("or " + TerminateVerdict + " if the work is finished.")
	if s.Instructions != "" {
		sb.WriteString("\n\n")
		sb.WriteString(s.Instructions)
	}
	return sb.String()
}

// matchRoleName returns the registered role whose name appears earliest in
// reply. Longer names win ties so "CodeReviewAgent" is not read as a
// shorter name it contains.
func matchRoleName(reply string, registry *Registry) string {
	roles := registry.OrderedRoles()
	sort.SliceStable(roles, func(i, j int) bool { return len(roles[i].Name) > len(roles[j].Name) })

	best, bestAt := "", -1
	for _, role := range roles {
		at := strings.Index(reply, role.Name)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt {
			best, bestAt = role.Name, at
		}
	}
	return best
}

package workflow

import (
	"fmt"
	"strings"
)

// DefaultCompletionToken is the literal that ends a run successfully when
// any role includes it in a message.
const DefaultCompletionToken = "WORKFLOW_COMPLETE"

// TaskTemplate renders the seed user message from the raw requirement.
type TaskTemplate func(requirement string, maxIterations int, completionToken string) string

// DefaultTaskTemplate describes the hand-off workflow to every role.
func DefaultTaskTemplate(requirement string, maxIterations int, completionToken string) string {
	var sb strings.Builder
	sb.WriteString("Develop an application based on the following requirement.\n\n")
	sb.WriteString(strings.TrimSpace(requirement))
	sb.WriteString("\n\nWork through these steps in order:\n")
	for i, role := range DefaultRoles() {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, role.Name, role.Description)
	}
	fmt.Fprintf(&sb, "\nEach role completes its task and hands off to the next one. "+
		"%s may send the code back to %s at most %d times.\n",
		RoleCodeReview, RoleCoding, maxIterations-4)
	fmt.Fprintf(&sb, "Start with %s. After all the tasks are completed, end with %s.",
		RoleRequirementAnalysis, completionToken)
	return sb.String()
}

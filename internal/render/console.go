package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/codecrew/workflow"
	"github.com/dshills/codecrew/workflow/store"
)

// Styles used by the console renderer and the interactive UI.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
	Warning lipgloss.Style
}

// NewStyles builds styles bound to r, so colour is only emitted when r's
// output supports it.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Dim:     r.NewStyle().Foreground(lipgloss.Color("243")),
		Success: r.NewStyle().Foreground(lipgloss.Color("46")),
		Failure: r.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("220")),
	}
}

// Console prints transcripts to a terminal as they are produced.
type Console struct {
	w      io.Writer
	styles Styles
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, styles: NewStyles(lipgloss.NewRenderer(w))}
}

// Message prints one conversation message with its icon and header.
func (c *Console) Message(m workflow.Message) {
	header := fmt.Sprintf("%s Message %d - %s", Icon(m.Source), m.Seq, m.Source)
	fmt.Fprintln(c.w, c.styles.Header.Render(header))
	if tokens := m.Usage.InputTokens + m.Usage.OutputTokens; tokens > 0 {
		fmt.Fprintln(c.w, c.styles.Dim.Render(fmt.Sprintf("tokens in=%d out=%d", m.Usage.InputTokens, m.Usage.OutputTokens)))
	}
	fmt.Fprintln(c.w, strings.TrimRight(m.Content, "\n"))
	fmt.Fprintln(c.w, c.styles.Dim.Render(strings.Repeat("─", 40)))
}

// Outcome prints the run summary line.
func (c *Console) Outcome(out workflow.Outcome) {
	fmt.Fprintln(c.w, c.styles.Status(out.State.Phase.String(), out.State.Reason.String()))
	fmt.Fprintf(c.w, "run %s: %d messages, %d review retries, %s\n",
		out.RunID, len(out.Conversation), out.State.ReviewRetries, out.Duration().Round(time.Millisecond))
	if out.Err != nil {
		fmt.Fprintln(c.w, c.styles.Failure.Render("error: "+out.Err.Error()))
	}
}

// Runs prints a table of stored runs.
func (c *Console) Runs(runs []store.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(c.w, "No runs recorded.")
		return
	}
	fmt.Fprintln(c.w, c.styles.Title.Render("Recent runs"))
	for _, r := range runs {
		status := c.styles.Warning.Render("● running")
		if r.Finished() {
			status = c.styles.Status(r.Phase, r.Reason)
		}
		fmt.Fprintf(c.w, "%s  %-3d %s  %s\n", r.RunID, r.Messages, status, Truncate(r.Requirement, 40))
	}
}

// Status renders a terminal phase and reason with a success or failure
// colour.
func (s Styles) Status(phase, reason string) string {
	switch phase {
	case workflow.PhaseCompleted.String():
		return s.Success.Render("✓ " + phase + " (" + reason + ")")
	case workflow.PhaseAborted.String():
		return s.Failure.Render("✗ " + phase + " (" + reason + ")")
	default:
		return s.Warning.Render("● " + phase)
	}
}

// Truncate shortens s to at most n runes, collapsing newlines.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

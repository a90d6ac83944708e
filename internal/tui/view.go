package tui

import (
	"fmt"
	"strings"

	"github.com/dshills/codecrew/internal/render"
)

func (a *App) View() string {
	switch a.view {
	case ViewForm:
		return a.viewForm()
	case ViewRunning:
		return a.viewRunning()
	case ViewDone:
		return a.viewDone()
	}
	return ""
}

func (a *App) viewForm() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("🤖 Coding Agent Team") + "\n\n")
	b.WriteString("Requirement\n")
	b.WriteString(a.requirement.View() + "\n\n")
	b.WriteString(fmt.Sprintf("Max iterations (%d-%d): ", MinIterations, MaxIterations))
	b.WriteString(a.iterations.View() + "\n\n")
	if a.err != nil {
		b.WriteString(a.styles.Failure.Render("⚠️ "+a.err.Error()) + "\n\n")
	}
	b.WriteString(a.styles.Dim.Render("[ctrl+r] start  [tab] switch field  [esc] quit"))
	return b.String()
}

func (a *App) viewRunning() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("🤖 Coding Agent Team") + "\n")
	b.WriteString(fmt.Sprintf("%s Agents working... %s\n\n", a.spinner.View(), a.progress()))
	b.WriteString(a.viewport.View() + "\n")
	if a.notice != "" {
		b.WriteString(a.styles.Warning.Render(a.notice) + "\n")
	}
	b.WriteString(a.styles.Dim.Render("[↑/↓] scroll  [esc] cancel run  [ctrl+c] quit"))
	return b.String()
}

func (a *App) viewDone() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("🤖 Coding Agent Team") + "  ")
	if a.session != nil {
		st := a.session.state
		b.WriteString(a.styles.Status(st.Phase.String(), st.Reason.String()))
		b.WriteString(fmt.Sprintf("  %d messages\n\n", len(a.session.messages)))
	}
	b.WriteString(a.viewport.View() + "\n")
	if a.err != nil {
		b.WriteString(a.styles.Failure.Render("❌ "+a.err.Error()) + "\n")
	}
	if a.notice != "" {
		b.WriteString(a.styles.Success.Render(a.notice) + "\n")
	}
	b.WriteString(a.styles.Dim.Render("[s] save transcript  [n] new run  [↑/↓] scroll  [q] quit"))
	return b.String()
}

// progress summarizes the live state, e.g. "3/20 messages, Reviewing".
func (a *App) progress() string {
	if a.session == nil {
		return ""
	}
	st := a.session.state
	return fmt.Sprintf("%d/%d messages, %s", len(a.session.messages), a.session.maxIterations, st.Phase)
}

func (a *App) refreshViewport() {
	if a.session == nil {
		a.viewport.SetContent("")
		return
	}
	a.viewport.SetContent(a.renderMessages())
}

func (a *App) renderMessages() string {
	var b strings.Builder
	b.WriteString(a.styles.Header.Render(fmt.Sprintf("📨 Agent Messages (%d)", len(a.session.messages))) + "\n\n")
	for _, m := range a.session.messages {
		b.WriteString(a.styles.Header.Render(fmt.Sprintf("%s Message %d - %s", render.Icon(m.Source), m.Seq, m.Source)) + "\n")
		b.WriteString(strings.TrimRight(m.Content, "\n") + "\n")
		b.WriteString(a.styles.Dim.Render(strings.Repeat("─", 40)) + "\n")
	}
	return b.String()
}

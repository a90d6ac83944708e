package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dshills/codecrew/workflow"
	"github.com/dshills/codecrew/workflow/model"
)

func completing(_ context.Context, role workflow.Role, _ []workflow.Message) (model.ChatOut, error) {
	switch role.Name {
	case workflow.RoleCodeReview:
		return model.ChatOut{Text: "APPROVED"}, nil
	case workflow.RoleUIGeneration:
		return model.ChatOut{Text: "UI done " + workflow.DefaultCompletionToken}, nil
	}
	return model.ChatOut{Text: role.Name + " output"}, nil
}

func blocking(ctx context.Context, _ workflow.Role, _ []workflow.Message) (model.ChatOut, error) {
	<-ctx.Done()
	return model.ChatOut{}, ctx.Err()
}

func newRunner(t *testing.T, inv workflow.InvokerFunc, calls *atomic.Int32) Runner {
	t.Helper()
	return func(requirement string, maxIterations int) (*workflow.Run, error) {
		if calls != nil {
			calls.Add(1)
		}
		c, err := workflow.New(workflow.DefaultRegistry(), inv, workflow.WithMaxIterations(maxIterations))
		if err != nil {
			return nil, err
		}
		return c.NewRun(requirement)
	}
}

// drain executes cmd and every command it produces, feeding messages back
// into the app until nothing is left.
func drain(t *testing.T, app *App, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 10000 {
			t.Fatal("command queue did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, c := app.Update(msg)
			queue = append(queue, c)
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestApp_BlankRequirement(t *testing.T) {
	var calls atomic.Int32
	app := NewApp(t.Context(), newRunner(t, completing, &calls), WithRequirement("   \n  "))

	_, cmd := app.Update(key("ctrl+r"))
	if cmd != nil {
		t.Error("blank requirement should not start anything")
	}
	if !errors.Is(app.Err(), ErrBlankRequirement) {
		t.Errorf("Err() = %v, want ErrBlankRequirement", app.Err())
	}
	if app.CurrentView() != ViewForm {
		t.Errorf("view = %v, want form", app.CurrentView())
	}
	if calls.Load() != 0 {
		t.Errorf("runner called %d times, want 0", calls.Load())
	}
	if !strings.Contains(app.View(), "please enter a requirement first") {
		t.Error("form should show the error")
	}
}

func TestApp_IterationCapBounds(t *testing.T) {
	for _, v := range []string{"4", "51", "abc", ""} {
		t.Run(v, func(t *testing.T) {
			var calls atomic.Int32
			app := NewApp(t.Context(), newRunner(t, completing, &calls), WithRequirement("Fibonacci"))
			app.iterations.SetValue(v)

			app.Update(key("ctrl+r"))
			if app.Err() == nil || !strings.Contains(app.Err().Error(), "between 5 and 50") {
				t.Errorf("Err() = %v, want bounds error", app.Err())
			}
			if calls.Load() != 0 {
				t.Error("runner should not be called")
			}
		})
	}
}

func TestApp_DefaultIterationCap(t *testing.T) {
	app := NewApp(t.Context(), nil)
	n, err := app.iterationCap()
	if err != nil || n != DefaultIterations {
		t.Errorf("iterationCap() = %d, %v; want %d", n, err, DefaultIterations)
	}
}

func TestApp_RunToCompletion(t *testing.T) {
	app := NewApp(t.Context(), newRunner(t, completing, nil), WithRequirement("Build a Fibonacci function"))

	_, cmd := app.Update(key("ctrl+r"))
	if app.CurrentView() != ViewRunning {
		t.Fatalf("view = %v, want running", app.CurrentView())
	}
	if !strings.Contains(app.View(), "Agents working") {
		t.Error("running view should show progress")
	}
	drain(t, app, cmd)

	if app.CurrentView() != ViewDone {
		t.Fatalf("view = %v, want done", app.CurrentView())
	}
	msgs := app.Messages()
	if len(msgs) != 8 {
		t.Fatalf("got %d messages, want 8", len(msgs))
	}
	if msgs[0].Source != workflow.SourceUser || msgs[7].Source != workflow.RoleUIGeneration {
		t.Errorf("first/last sources = %s/%s", msgs[0].Source, msgs[7].Source)
	}
	out, ok := app.Outcome()
	if !ok || !out.Completed() {
		t.Errorf("Outcome() = %+v, %v; want completed", out.State, ok)
	}

	transcript := app.renderMessages()
	for _, want := range []string{"Agent Messages (8)", "📋 Message 2 - RequirementAnalysisAgent", "💻 Message 3 - CodingAgent", "🎨 Message 8 - UIGenerationAgent"} {
		if !strings.Contains(transcript, want) {
			t.Errorf("transcript missing %q", want)
		}
	}
	if !strings.Contains(app.View(), "Completed (CompletionSignal)") {
		t.Error("done view should show the terminal status")
	}
}

func TestApp_SaveTranscript(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	app := NewApp(t.Context(), newRunner(t, completing, nil),
		WithRequirement("Fibonacci"), WithExportDir(dir), WithClock(func() time.Time { return at }))

	_, cmd := app.Update(key("ctrl+r"))
	drain(t, app, cmd)
	app.Update(key("s"))

	path := filepath.Join(dir, "agent_messages_20250601_093000.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved transcript: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "=== Message 1 - user ===\n") || !strings.Contains(text, "Fibonacci") {
		t.Errorf("transcript = %q", text[:min(len(text), 80)])
	}
	if strings.Count(text, "=== Message ") != 8 {
		t.Errorf("transcript should hold 8 messages")
	}
	if !strings.Contains(app.View(), "saved "+path) {
		t.Error("done view should report the saved path")
	}
}

func TestApp_CancelRun(t *testing.T) {
	app := NewApp(t.Context(), newRunner(t, blocking, nil), WithRequirement("Fibonacci"))

	_, cmd := app.Update(key("ctrl+r"))
	app.Update(key("esc"))
	drain(t, app, cmd)

	if app.CurrentView() != ViewDone {
		t.Fatalf("view = %v, want done", app.CurrentView())
	}
	out, _ := app.Outcome()
	if out.State.Reason != workflow.ReasonCancelled {
		t.Errorf("reason = %v, want Cancelled", out.State.Reason)
	}
	if len(app.Messages()) != 1 {
		t.Errorf("got %d messages, want only the seed", len(app.Messages()))
	}
}

func TestApp_NewRunReturnsToForm(t *testing.T) {
	app := NewApp(t.Context(), newRunner(t, completing, nil), WithRequirement("Fibonacci"))
	_, cmd := app.Update(key("ctrl+r"))
	drain(t, app, cmd)

	app.Update(key("n"))
	if app.CurrentView() != ViewForm {
		t.Fatalf("view = %v, want form", app.CurrentView())
	}
	if app.requirement.Value() != "Fibonacci" {
		t.Errorf("requirement should be kept, got %q", app.requirement.Value())
	}
}

func TestApp_TabSwitchesFocus(t *testing.T) {
	app := NewApp(t.Context(), nil)
	app.Update(key("tab"))
	if app.focus != focusIterations {
		t.Fatal("tab should focus the iteration field")
	}
	app.Update(key("tab"))
	if app.focus != focusRequirement {
		t.Fatal("second tab should focus the requirement")
	}
}

func TestApp_Quit(t *testing.T) {
	app := NewApp(t.Context(), nil)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
	if app.ctx.Err() == nil {
		t.Error("quitting should cancel the app context")
	}
}

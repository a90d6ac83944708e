// Package tui is the interactive front end: a requirement form, a live
// view of the agents' messages, and a transcript export.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/codecrew/internal/render"
	"github.com/dshills/codecrew/workflow"
)

// Bounds of the iteration cap accepted by the form.
const (
	MinIterations     = 5
	MaxIterations     = 50
	DefaultIterations = 20
)

// ErrBlankRequirement is shown when the form is submitted without text.
var ErrBlankRequirement = errors.New("please enter a requirement first")

// Runner prepares a run for a requirement with the given message cap.
type Runner func(requirement string, maxIterations int) (*workflow.Run, error)

type View int

const (
	ViewForm View = iota
	ViewRunning
	ViewDone
)

type focus int

const (
	focusRequirement focus = iota
	focusIterations
)

// session holds the state of the run shown on screen.
type session struct {
	requirement   string
	maxIterations int
	messages      []workflow.Message
	state         workflow.State
	outcome       *workflow.Outcome
	savedPath     string
}

type (
	messageMsg struct {
		msg   workflow.Message
		state workflow.State
	}
	finishedMsg struct {
		outcome workflow.Outcome
	}
)

// App is the bubbletea model.
type App struct {
	ctx       context.Context
	quit      context.CancelFunc
	runner    Runner
	exportDir string
	now       func() time.Time

	view        View
	focus       focus
	requirement textarea.Model
	iterations  textinput.Model
	spinner     spinner.Model
	viewport    viewport.Model
	styles      render.Styles

	session   *session
	cancelRun context.CancelFunc
	events    <-chan tea.Msg
	err       error
	notice    string

	width  int
	height int
}

type Option func(*App)

// WithExportDir sets where transcripts are saved. Defaults to ".".
func WithExportDir(dir string) Option {
	return func(a *App) { a.exportDir = dir }
}

// WithClock overrides the time source used for export file names.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithRequirement prefills the requirement field.
func WithRequirement(text string) Option {
	return func(a *App) { a.requirement.SetValue(text) }
}

// NewApp builds the model. Runs are cancelled when ctx is done or the user
// quits.
func NewApp(ctx context.Context, runner Runner, opts ...Option) *App {
	ctx, quit := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Describe what the team should build..."
	ta.SetWidth(72)
	ta.SetHeight(6)
	ta.Focus()

	ti := textinput.New()
	ti.CharLimit = 2
	ti.Width = 4
	ti.SetValue(strconv.Itoa(DefaultIterations))

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	a := &App{
		ctx:         ctx,
		quit:        quit,
		runner:      runner,
		exportDir:   ".",
		now:         time.Now,
		requirement: ta,
		iterations:  ti,
		spinner:     sp,
		viewport:    viewport.New(80, 20),
		styles:      render.NewStyles(lipgloss.DefaultRenderer()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CurrentView returns the screen currently shown.
func (a *App) CurrentView() View { return a.view }

// Messages returns the messages received for the current session.
func (a *App) Messages() []workflow.Message {
	if a.session == nil {
		return nil
	}
	return append([]workflow.Message(nil), a.session.messages...)
}

// Outcome returns the finished run's outcome, if any.
func (a *App) Outcome() (workflow.Outcome, bool) {
	if a.session == nil || a.session.outcome == nil {
		return workflow.Outcome{}, false
	}
	return *a.session.outcome, true
}

// Err returns the error shown on screen.
func (a *App) Err() error { return a.err }

func (a *App) Init() tea.Cmd {
	return textarea.Blink
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.requirement.SetWidth(max(20, msg.Width-4))
		a.viewport.Width = msg.Width
		a.viewport.Height = max(5, msg.Height-6)
		a.refreshViewport()
		return a, nil

	case spinner.TickMsg:
		if a.view != ViewRunning {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case messageMsg:
		if a.session == nil {
			return a, nil
		}
		a.session.messages = append(a.session.messages, msg.msg)
		a.session.state = msg.state
		a.refreshViewport()
		a.viewport.GotoBottom()
		return a, waitForEvent(a.events)

	case finishedMsg:
		if a.session == nil {
			return a, nil
		}
		out := msg.outcome
		a.session.outcome = &out
		a.session.state = out.State
		a.cancelRun = nil
		a.events = nil
		a.view = ViewDone
		a.err = out.Err
		a.refreshViewport()
		return a, nil
	}

	if a.view == ViewForm {
		return a, a.updateInputs(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, a.shutdown()
	}
	switch a.view {
	case ViewForm:
		return a.handleFormKey(msg)
	case ViewRunning:
		return a.handleRunningKey(msg)
	case ViewDone:
		return a.handleDoneKey(msg)
	}
	return a, nil
}

func (a *App) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return a, a.shutdown()
	case "tab", "shift+tab":
		return a, a.toggleFocus()
	case "ctrl+r":
		return a, a.start()
	}
	return a, a.updateInputs(msg)
}

func (a *App) handleRunningKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "x":
		if a.cancelRun != nil {
			a.cancelRun()
			a.notice = "cancelling..."
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) handleDoneKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return a, a.shutdown()
	case "s":
		a.save()
		return a, nil
	case "n":
		a.view = ViewForm
		a.focus = focusRequirement
		a.err = nil
		a.notice = ""
		return a, a.requirement.Focus()
	}
	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if a.focus == focusRequirement {
		a.requirement, cmd = a.requirement.Update(msg)
	} else {
		a.iterations, cmd = a.iterations.Update(msg)
	}
	return cmd
}

func (a *App) toggleFocus() tea.Cmd {
	if a.focus == focusRequirement {
		a.focus = focusIterations
		a.requirement.Blur()
		return a.iterations.Focus()
	}
	a.focus = focusRequirement
	a.iterations.Blur()
	return a.requirement.Focus()
}

// iterationCap parses the cap field.
func (a *App) iterationCap() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(a.iterations.Value()))
	if err != nil || n < MinIterations || n > MaxIterations {
		return 0, fmt.Errorf("iteration cap must be a number between %d and %d", MinIterations, MaxIterations)
	}
	return n, nil
}

// start validates the form and launches a run. Nothing is invoked for a
// blank requirement.
func (a *App) start() tea.Cmd {
	requirement := a.requirement.Value()
	if strings.TrimSpace(requirement) == "" {
		a.err = ErrBlankRequirement
		return nil
	}
	limit, err := a.iterationCap()
	if err != nil {
		a.err = err
		return nil
	}

	run, err := a.runner(requirement, limit)
	if err != nil {
		a.err = err
		return nil
	}

	runCtx, cancel := context.WithCancel(a.ctx)
	a.cancelRun = cancel
	a.session = &session{requirement: requirement, maxIterations: limit}
	a.err = nil
	a.notice = ""
	a.view = ViewRunning
	a.requirement.Blur()
	a.iterations.Blur()
	a.refreshViewport()

	a.events = stream(a.ctx, runCtx, run)
	return tea.Batch(a.spinner.Tick, waitForEvent(a.events))
}

// stream feeds run messages into a channel read by waitForEvent. The
// channel is closed after the finished event. appCtx stops delivery when
// the program exits.
func stream(appCtx, runCtx context.Context, run *workflow.Run) <-chan tea.Msg {
	events := make(chan tea.Msg, 16)
	go func() {
		defer close(events)
		send := func(m tea.Msg) bool {
			select {
			case events <- m:
				return true
			case <-appCtx.Done():
				return false
			}
		}
		for msg, state := range run.Stream(runCtx) {
			if !send(messageMsg{msg: msg, state: state}) {
				return
			}
		}
		send(finishedMsg{outcome: run.Outcome()})
	}()
	return events
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (a *App) save() {
	if a.session == nil || len(a.session.messages) == 0 {
		a.notice = "nothing to save"
		return
	}
	path, err := render.SaveExport(a.exportDir, a.session.messages, a.now())
	if err != nil {
		a.err = err
		return
	}
	a.session.savedPath = path
	a.notice = "saved " + path
}

func (a *App) shutdown() tea.Cmd {
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.quit()
	return tea.Quit
}

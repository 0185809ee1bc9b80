// Package tui is a terminal front-end for wizard runs.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusPaused   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// SaveFunc persists a finished suggestion and returns where it went.
type SaveFunc func(graph.WizardSuggestion) (string, error)

type refreshMsg struct{}

type resultMsg orchestrator.Result

type savedMsg struct {
	location string
	err      error
}

// App is the bubbletea model of the wizard.
type App struct {
	orch    *orchestrator.Orchestrator
	changed chan struct{}
	save    SaveFunc

	input   textinput.Model
	spinner spinner.Model
	bar     progress.Model

	state      orchestrator.State
	progress   orchestrator.Progress
	suggestion *graph.WizardSuggestion
	notice     string
	err        error
	width      int
}

// Option configures an App.
type Option func(*App)

// WithQuery pre-fills the request input.
func WithQuery(q string) Option {
	return func(a *App) { a.input.SetValue(q) }
}

// WithSave enables the save key for finished suggestions.
func WithSave(fn SaveFunc) Option {
	return func(a *App) { a.save = fn }
}

// NewApp creates the model. orchOpts configure the underlying orchestrator;
// the app installs its own callbacks after them.
func NewApp(intents orchestrator.IntentService, batches orchestrator.BatchGenerator, orchOpts []orchestrator.Option, opts ...Option) *App {
	ti := textinput.New()
	ti.Placeholder = "Have 50 chefs rate a recipe"
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	a := &App{
		changed: make(chan struct{}, 1),
		input:   ti,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient()),
		state:   orchestrator.StateIdle,
	}

	notify := func() {
		select {
		case a.changed <- struct{}{}:
		default:
		}
	}
	all := append([]orchestrator.Option{}, orchOpts...)
	all = append(all,
		orchestrator.WithOnStateChange(func(orchestrator.TransitionEvent) { notify() }),
		orchestrator.WithOnProgress(func(orchestrator.Progress) { notify() }),
		orchestrator.WithOnClose(notify),
	)
	a.orch = orchestrator.New(intents, batches, all...)

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Orchestrator returns the orchestrator driven by the app.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Suggestion returns the last finished suggestion, if any.
func (a *App) Suggestion() *graph.WizardSuggestion { return a.suggestion }

func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.spinner.Tick, a.listen)
}

// listen turns orchestrator callbacks into refresh messages. Signals are
// coalesced; the model reads the current state on every refresh.
func (a *App) listen() tea.Msg {
	<-a.changed
	return refreshMsg{}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.bar.Width = max(10, min(msg.Width-4, 80))
		return a, nil

	case refreshMsg:
		a.refresh()
		return a, a.listen

	case resultMsg:
		a.refresh()
		switch {
		case msg.Err == nil:
			a.suggestion = msg.Suggestion
			a.err = nil
		case errors.Is(msg.Err, orchestrator.ErrCancelled):
			a.notice = "Run cancelled."
			a.input.Focus()
		default:
			a.err = msg.Err
		}
		return a, nil

	case savedMsg:
		if msg.err != nil {
			a.err = msg.err
		} else {
			a.notice = "Saved to " + msg.location
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case progress.FrameMsg:
		m, cmd := a.bar.Update(msg)
		if bar, ok := m.(progress.Model); ok {
			a.bar = bar
		}
		return a, cmd
	}

	if a.input.Focused() {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) refresh() {
	a.state = a.orch.State()
	a.progress = a.orch.Progress()
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		a.orch.Close()
		return a, tea.Quit
	}

	if a.input.Focused() {
		switch key {
		case "enter":
			return a, a.submit()
		case "esc":
			a.orch.Close()
			return a, tea.Quit
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}

	switch key {
	case "q":
		a.orch.Close()
		return a, tea.Quit

	case "p", " ":
		var err error
		if a.orch.Progress().Paused {
			err = a.orch.Resume()
		} else {
			err = a.orch.Pause()
		}
		a.setErr(err)
		a.refresh()

	case "c", "esc":
		a.setErr(a.orch.Cancel())
		a.refresh()

	case "r", "n":
		if a.setErr(a.orch.Reset()) {
			a.refresh()
			a.suggestion = nil
			a.notice = ""
			a.input.Reset()
			a.input.Focus()
		}

	case "s":
		if a.suggestion != nil && a.save != nil {
			return a, a.saveCmd(*a.suggestion)
		}
	}
	return a, nil
}

// setErr records err and reports whether the action succeeded.
func (a *App) setErr(err error) bool {
	a.err = err
	return err == nil
}

func (a *App) submit() tea.Cmd {
	query := strings.TrimSpace(a.input.Value())
	if query == "" {
		return nil
	}
	results, err := a.orch.Start(context.Background(), query)
	if err != nil {
		a.err = err
		return nil
	}
	a.input.Blur()
	a.err = nil
	a.notice = ""
	a.suggestion = nil
	a.refresh()
	return func() tea.Msg {
		return resultMsg(<-results)
	}
}

func (a *App) saveCmd(s graph.WizardSuggestion) tea.Cmd {
	return func() tea.Msg {
		loc, err := a.save(s)
		return savedMsg{location: loc, err: err}
	}
}

func (a *App) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Workflow Wizard") + "  " + a.formatState() + "\n\n")

	b.WriteString(a.input.View() + "\n\n")

	if a.state == orchestrator.StateParsing || a.state == orchestrator.StateGenerating {
		p := a.progress
		b.WriteString(a.spinner.View() + " ")
		if p.BatchCount > 0 {
			fmt.Fprintf(&b, "batch %d of %d, %d/%d actors\n", min(p.BatchesCompleted+1, p.BatchCount), p.BatchCount, p.Actors, p.TotalActors)
		} else {
			b.WriteString("understanding request\n")
		}
		b.WriteString(a.bar.ViewAs(p.Fraction()) + "\n")
	}

	if s := a.suggestion; s != nil {
		fmt.Fprintf(&b, "%s\n", titleStyle.Render(s.Name))
		if s.Description != "" {
			b.WriteString(dimStyle.Render(s.Description) + "\n")
		}
		fmt.Fprintf(&b, "%d nodes, %d connections, category %s\n", len(s.Nodes), len(s.Connections), s.Category)
	}

	if a.notice != "" {
		b.WriteString(dimStyle.Render(a.notice) + "\n")
	}
	if a.err != nil {
		b.WriteString(statusFailed.Render("Error: "+a.err.Error()) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render(a.help()))
	return b.String()
}

func (a *App) formatState() string {
	switch a.state {
	case orchestrator.StateParsing, orchestrator.StateGenerating:
		if a.progress.Paused {
			return statusPaused.Render("⏸ paused")
		}
		return statusRunning.Render("● " + string(a.state))
	case orchestrator.StateComplete:
		return statusComplete.Render("✓ complete")
	case orchestrator.StateError:
		return statusFailed.Render("✗ error")
	}
	return dimStyle.Render("idle")
}

func (a *App) help() string {
	switch a.state {
	case orchestrator.StateParsing, orchestrator.StateGenerating:
		return "[p] pause/resume  [c] cancel  [q] quit"
	case orchestrator.StateComplete:
		if a.save != nil {
			return "[s] save  [r] new request  [q] quit"
		}
		return "[r] new request  [q] quit"
	case orchestrator.StateError:
		return "[r] reset  [q] quit"
	}
	return "[enter] generate  [esc] quit"
}

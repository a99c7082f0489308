// Package tui is the terminal front-end for an attempt session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/olympiad/exam-portal/internal/attempt"
	"github.com/olympiad/exam-portal/internal/model"
)

// Session is the part of attempt.Session the UI drives.
type Session interface {
	Snapshot() attempt.Snapshot
	Current() (attempt.QuestionView, error)
	Next() (attempt.QuestionView, error)
	Prev() (attempt.QuestionView, error)
	Jump(index int) (attempt.QuestionView, error)
	Select(option string) (bool, error)
	SaveAndNext(ctx context.Context) (attempt.SaveOutcome, error)
	ToggleReview() (bool, error)
	Finish(ctx context.Context) (*model.SubmitResult, error)
}

// Options configures the UI model.
type Options struct {
	NoColor bool
	// ActionTimeout bounds save and finish requests.
	ActionTimeout time.Duration
}

// Model renders one attempt and forwards key presses to the session.
type Model struct {
	sess   Session
	events <-chan attempt.Event
	opts   Options

	keys     keyMap
	help     help.Model
	bar      progress.Model
	jumpIn   textinput.Model
	snap     attempt.Snapshot
	cursor   int
	status   string
	isError  bool
	jumping  bool
	confirm  bool
	busy     bool
	result   *model.SubmitResult
	width    int
	quitting bool
}

// NewModel builds the UI for a started session.
func NewModel(sess Session, events <-chan attempt.Event, opts Options) Model {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 15 * time.Second
	}
	barOpts := []progress.Option{progress.WithWidth(40), progress.WithoutPercentage()}
	if opts.NoColor {
		barOpts = append(barOpts, progress.WithSolidFill("7"))
	} else {
		barOpts = append(barOpts, progress.WithDefaultGradient())
	}

	ti := textinput.New()
	ti.Placeholder = "question number"
	ti.CharLimit = 4
	ti.Prompt = "Go to: "

	m := Model{
		sess:   sess,
		events: events,
		opts:   opts,
		keys:   defaultKeys(),
		help:   help.New(),
		bar:    progress.New(barOpts...),
		jumpIn: ti,
	}
	m.refresh()
	return m
}

// Result returns the graded result if the attempt was submitted while the UI ran.
func (m Model) Result() *model.SubmitResult {
	return m.result
}

// EventMsg wraps a session event for Bubble Tea.
type EventMsg struct {
	Event attempt.Event
}

type savedMsg struct {
	outcome attempt.SaveOutcome
	err     error
}

type finishedMsg struct {
	result *model.SubmitResult
	err    error
}

// Init waits for the first session event.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update consumes key presses, session events and command results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.help.Width = typed.Width
		return m, nil

	case EventMsg:
		m = m.applyEvent(typed.Event)
		return m, waitForEvent(m.events)

	case savedMsg:
		m.busy = false
		m.refresh()
		m.cursor = m.selectedIndex()
		switch {
		case typed.err != nil:
			m.setError(typed.err)
		case typed.outcome == attempt.SaveSkippedLocked:
			m.setStatus("Answer was saved in an earlier sitting and cannot change.")
		default:
			m.setStatus("Saved.")
		}
		return m, nil

	case finishedMsg:
		m.busy = false
		m.refresh()
		if typed.err != nil {
			m.setError(typed.err)
			return m, nil
		}
		m.result = typed.result
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && !m.jumping {
		m.quitting = true
		return m, tea.Quit
	}
	if m.result != nil {
		// Any key leaves the results screen.
		m.quitting = true
		return m, tea.Quit
	}
	if m.jumping {
		return m.handleJumpKey(msg)
	}
	if m.confirm {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirm = false
			cmd := m.finishCmd()
			return m, cmd
		case key.Matches(msg, m.keys.Cancel):
			m.confirm = false
			m.setStatus("")
		}
		return m, nil
	}
	if m.busy {
		return m, nil
	}

	opts := m.currentOptions()
	switch {
	case key.Matches(msg, m.keys.Prev):
		m.navigate(m.sess.Prev())
	case key.Matches(msg, m.keys.Next):
		m.navigate(m.sess.Next())
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(opts)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Choose):
		m.choose(m.cursor)
	case key.Matches(msg, m.keys.Save):
		m.busy = true
		m.setStatus("Saving...")
		return m, m.saveCmd()
	case key.Matches(msg, m.keys.Review):
		marked, err := m.sess.ToggleReview()
		m.refresh()
		if err != nil {
			m.setError(err)
		} else if marked {
			m.setStatus("Marked for review.")
		} else {
			m.setStatus("Review mark removed.")
		}
	case key.Matches(msg, m.keys.Jump):
		m.jumping = true
		m.jumpIn.SetValue("")
		cmd := m.jumpIn.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Finish):
		m.confirm = true
		c := m.snap.Counts
		m.setStatus(fmt.Sprintf("Finish the exam? %d answered, %d unanswered. (y/n)", c.Answered, c.Unanswered))
	default:
		if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(opts) {
			m.cursor = n - 1
			m.choose(m.cursor)
		}
	}
	return m, nil
}

func (m Model) handleJumpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.jumping = false
		m.jumpIn.Blur()
		return m, nil
	case tea.KeyEnter:
		m.jumping = false
		m.jumpIn.Blur()
		n, err := strconv.Atoi(m.jumpIn.Value())
		if err != nil {
			m.setError(attempt.ErrIndexOutOfRange)
			return m, nil
		}
		m.navigate(m.sess.Jump(n - 1))
		return m, nil
	}
	var cmd tea.Cmd
	m.jumpIn, cmd = m.jumpIn.Update(msg)
	return m, cmd
}

func (m *Model) navigate(_ attempt.QuestionView, err error) {
	m.refresh()
	m.cursor = m.selectedIndex()
	if err != nil {
		m.setError(err)
		return
	}
	m.setStatus("")
}

func (m *Model) choose(i int) {
	opts := m.currentOptions()
	if i < 0 || i >= len(opts) {
		return
	}
	applied, err := m.sess.Select(opts[i])
	m.refresh()
	switch {
	case err != nil:
		m.setError(err)
	case !applied:
		m.setStatus("This answer is locked.")
	default:
		m.setStatus("Selected. Press enter to save.")
	}
}

func (m Model) saveCmd() tea.Cmd {
	sess, timeout := m.sess, m.opts.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		outcome, err := sess.SaveAndNext(ctx)
		return savedMsg{outcome: outcome, err: err}
	}
}

func (m *Model) finishCmd() tea.Cmd {
	m.busy = true
	m.setStatus("Submitting...")
	sess, timeout := m.sess, m.opts.ActionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := sess.Finish(ctx)
		return finishedMsg{result: res, err: err}
	}
}

func (m Model) applyEvent(ev attempt.Event) Model {
	m.refresh()
	switch ev.Kind {
	case attempt.EventExpired:
		m.confirm = false
		m.setStatus("Time is up. Submitting your answers...")
	case attempt.EventSubmitted:
		m.busy = false
		if ev.Result != nil {
			m.result = ev.Result
		}
	case attempt.EventSubmitFailed:
		m.busy = false
		m.setError(fmt.Errorf("submission failed, press f to retry: %w", ev.Err))
	}
	return m
}

func (m *Model) refresh() {
	m.snap = m.sess.Snapshot()
	if n := len(m.currentOptions()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.isError = false
}

func (m *Model) setError(err error) {
	m.isError = true
	switch {
	case errors.Is(err, attempt.ErrNoSelection):
		m.status = "Select an option before saving."
	case errors.Is(err, attempt.ErrTimeUp):
		m.status = "Time is up. Answers can no longer change."
	case errors.Is(err, attempt.ErrAlreadySubmitted):
		m.status = "The exam has already been submitted."
	case errors.Is(err, attempt.ErrIndexOutOfRange):
		m.status = fmt.Sprintf("Enter a number from 1 to %d.", len(m.snap.Questions))
	default:
		m.status = err.Error()
	}
}

func (m Model) currentOptions() []string {
	if m.snap.Index < 0 || m.snap.Index >= len(m.snap.Questions) {
		return nil
	}
	return m.snap.Questions[m.snap.Index].Options
}

func (m Model) selectedIndex() int {
	if m.snap.Index >= len(m.snap.Entries) {
		return 0
	}
	selected := m.snap.Entries[m.snap.Index].Status.SelectedOption
	for i, o := range m.currentOptions() {
		if o == selected {
			return i
		}
	}
	return 0
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.result != nil {
		return renderResult(m.snap, m.result, m.opts.NoColor)
	}

	footer := m.help.ShortHelpView(m.keys.examHelp())
	if m.jumping {
		footer = m.jumpIn.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(m.snap, m.bar, m.opts.NoColor),
		"",
		renderQuestion(m.snap, m.cursor, m.opts.NoColor),
		"",
		renderPalette(m.snap, m.opts.NoColor),
		renderStatus(m.status, m.isError, m.opts.NoColor),
		footer,
	)
}

// waitForEvent blocks until a session event is available.
func waitForEvent(events <-chan attempt.Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		ev, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

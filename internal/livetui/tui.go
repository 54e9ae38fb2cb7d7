// Package livetui renders the live meeting screen: bot status while the
// meeting is active, then result readiness once it has ended.
package livetui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/vocaris/vocaris/backend"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/internal/ui"
	"github.com/vocaris/vocaris/meeting"
)

// Options configures the live screen.
type Options struct {
	Lifecycle *meeting.Lifecycle
	Status    meeting.StatusPollerOptions
	Readiness meeting.ReadinessPollerOptions
	// Confirm asks the backend to remove the bot when the meeting is ended
	// from the screen.
	Confirm bool
}

// Result is the state the screen was left in.
type Result struct {
	Phase     meeting.Phase
	Readiness meeting.Readiness
	// TimedOut is set when readiness polling hit its attempt cap.
	TimedOut bool
}

type statusLevel int

const (
	statusNone statusLevel = iota
	statusInfo
	statusError
)

type keyMap struct {
	End     key.Binding
	Confirm key.Binding
	Cancel  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		End:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "end meeting")),
		Confirm: key.NewBinding(key.WithKeys("y", "enter"), key.WithHelp("y", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "cancel")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.End, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.End, k.Confirm, k.Cancel}, {k.Help, k.Quit}}
}

type model struct {
	ctx       context.Context
	lifecycle *meeting.Lifecycle
	status    *meeting.StatusPoller
	readiness *meeting.ReadinessPoller
	confirm   bool

	width   int
	height  int
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	session   meeting.Session
	phase     meeting.Phase
	latest    backend.MeetingStatus
	hasStatus bool
	inactive  int

	polling    bool
	tick       meeting.ReadinessTick
	done       bool
	timedOut   bool
	confirming bool
	ending     bool

	message string
	level   statusLevel
	err     error
}

// Run shows the live screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Lifecycle == nil {
		return Result{}, fmt.Errorf("meeting lifecycle is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	program := tea.NewProgram(newModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return Result{}, err
	}
	m, ok := final.(model)
	if !ok {
		return Result{}, nil
	}
	return m.result(), m.err
}

func newModel(ctx context.Context, opts Options) model {
	session, _ := opts.Lifecycle.Session()
	spin := spinner.New(spinner.WithSpinner(spinner.Line))
	return model{
		ctx:       ctx,
		lifecycle: opts.Lifecycle,
		status:    opts.Lifecycle.StatusPoller(opts.Status),
		readiness: opts.Lifecycle.ReadinessPoller(opts.Readiness),
		confirm:   opts.Confirm,
		spinner:   spin,
		help:      help.New(),
		keys:      newKeyMap(),
		session:   session,
		phase:     opts.Lifecycle.Phase(),
	}
}

func (m model) Init() tea.Cmd {
	switch m.phase {
	case meeting.PhaseActive:
		return tea.Batch(m.spinner.Tick, m.statusTickCmd())
	case meeting.PhaseEnded:
		return tea.Batch(m.spinner.Tick, m.scheduleReadiness(true))
	default:
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case statusDueMsg:
		if m.phase != meeting.PhaseActive {
			return m, nil
		}
		return m, m.statusTickCmd()
	case statusMsg:
		return m.handleStatus(msg)
	case finalizedMsg:
		return m.handleFinalized(msg)
	case readinessDueMsg:
		return m, m.readinessTickCmd()
	case readinessMsg:
		return m.handleReadiness(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.confirming {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirming = false
			m.ending = true
			m.setStatus("Ending meeting...", statusInfo)
			return m, m.finalizeCmd()
		case key.Matches(msg, m.keys.Cancel):
			m.confirming = false
			m.setStatus("", statusNone)
		}
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.End):
		if m.phase == meeting.PhaseActive && !m.ending {
			m.confirming = true
		}
	}
	return m, nil
}

func (m model) handleStatus(msg statusMsg) (tea.Model, tea.Cmd) {
	if m.phase != meeting.PhaseActive {
		return m, nil
	}
	switch {
	case errors.Is(msg.err, meeting.ErrNoSession), errors.Is(msg.err, meeting.ErrSessionMismatch):
		m.err = msg.err
		return m, tea.Quit
	case msg.result.Ended || errors.Is(msg.err, meeting.ErrNotActive):
		if msg.err == nil {
			m.latest, m.hasStatus = msg.result.Status, true
			m.inactive = msg.result.ConsecutiveInactive
		}
		m.setStatus("Bot left the call. Waiting for results.", statusInfo)
		cmd := m.enterEnded()
		return m, cmd
	case errors.Is(msg.err, meeting.ErrTickInFlight):
		return m, m.scheduleStatus()
	case msg.err != nil:
		m.setStatus(fmt.Sprintf("Status check failed: %v", msg.err), statusError)
		return m, m.scheduleStatus()
	}
	m.latest, m.hasStatus = msg.result.Status, true
	m.inactive = msg.result.ConsecutiveInactive
	if m.level == statusError {
		m.setStatus("", statusNone)
	}
	return m, m.scheduleStatus()
}

func (m model) handleFinalized(msg finalizedMsg) (tea.Model, tea.Cmd) {
	m.ending = false
	if msg.err != nil {
		m.setStatus(fmt.Sprintf("End meeting failed: %v", msg.err), statusError)
		return m, nil
	}
	m.setStatus("Meeting ended. Waiting for results.", statusInfo)
	cmd := m.enterEnded()
	return m, cmd
}

func (m model) handleReadiness(msg readinessMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.err, meeting.ErrNoSession) || errors.Is(msg.err, meeting.ErrNotEnded) || errors.Is(msg.err, meeting.ErrSessionMismatch) {
		m.err = msg.err
		return m, tea.Quit
	}
	if msg.tick.Attempt > 0 || msg.tick.Done {
		m.tick = msg.tick
	}
	if msg.tick.Done {
		m.done = true
		m.setStatus("Results ready. Run `vocaris chat` to read them.", statusInfo)
		return m, nil
	}
	if msg.err != nil {
		m.setStatus(fmt.Sprintf("Results check failed: %v", msg.err), statusError)
	}
	if m.readiness.Exhausted() {
		m.timedOut = true
		m.setStatus("Results are still being generated. Run `vocaris wait` to keep checking.", statusError)
		return m, nil
	}
	return m, m.scheduleReadiness(false)
}

// enterEnded moves the screen to the readiness view once.
func (m *model) enterEnded() tea.Cmd {
	m.phase = m.lifecycle.Phase()
	if session, err := m.lifecycle.Session(); err == nil {
		m.session = session
	}
	if m.polling {
		return nil
	}
	m.polling = true
	return m.scheduleReadiness(true)
}

func (m model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	sections := []string{
		titleBarStyle.Width(width).Render("Vocaris live meeting"),
		paneStyle.Width(width - 2).Render(m.renderDetails()),
	}
	if m.confirming {
		sections = append(sections, modalStyle.Render("End the meeting now? (y/n)"))
	}
	if line := m.renderStatusLine(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.help.View(m.keys))
	return strings.Join(sections, "\n")
}

func (m model) renderDetails() string {
	lines := []string{
		field("Meeting", internalstrings.FirstNonBlank(m.session.MeetingURL, "-")),
		field("Bot", internalstrings.FirstNonBlank(m.session.BotID, "-")),
		field("Mode", sessionMode(m.session)),
		field("Phase", m.phase.String()),
		"",
	}
	switch m.phase {
	case meeting.PhaseActive:
		lines = append(lines, m.renderActive()...)
	case meeting.PhaseEnded:
		lines = append(lines, m.renderReadiness()...)
	default:
		lines = append(lines, valueMuted.Render("No meeting in progress. Run `vocaris start <url>`."))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderActive() []string {
	if !m.hasStatus {
		return []string{m.spinner.View() + " Waiting for first status..."}
	}
	state := readyStyle.Render("in call")
	if !m.latest.IsActive {
		state = warnStyle.Render("inactive")
	} else if m.latest.BotInCall != nil && !*m.latest.BotInCall {
		state = warnStyle.Render("joining")
	}
	lines := []string{
		m.spinner.View() + " " + state,
		field("Uptime", ui.FormatUptime(m.latest.UptimeSeconds)),
	}
	if m.latest.TranscriptCount != nil {
		lines = append(lines, field("Transcripts", fmt.Sprintf("%d", *m.latest.TranscriptCount)))
	}
	if m.inactive > 0 {
		lines = append(lines, field("Inactive", warnStyle.Render(fmt.Sprintf("%d in a row", m.inactive))))
	}
	return lines
}

func (m model) renderReadiness() []string {
	readiness := m.tick.Readiness
	scrum := valueMuted.Render("n/a")
	if m.session.IsScrum {
		scrum = flag(readiness.ScrumReady)
	}
	lines := []string{
		field("Chat", flag(readiness.ChatReady)),
		field("Scrum", scrum),
	}
	switch {
	case m.done:
	case m.timedOut:
		lines = append(lines, field("Attempts", fmt.Sprintf("%d", m.tick.Attempt)))
	default:
		progress := m.spinner.View() + " Generating results"
		if m.tick.Attempt > 0 {
			progress += fmt.Sprintf(" (attempt %d)", m.tick.Attempt)
		}
		if m.tick.Slow {
			progress += warnStyle.Render(" taking longer than usual")
		}
		lines = append(lines, progress)
	}
	return lines
}

func (m model) renderStatusLine() string {
	if internalstrings.IsBlank(m.message) {
		return ""
	}
	style := valueMuted
	switch m.level {
	case statusError:
		style = statusErrorStyle
	case statusInfo:
		style = statusSuccessStyle
	}
	return style.Render(m.message)
}

func (m *model) setStatus(text string, level statusLevel) {
	m.message = text
	m.level = level
}

func (m model) result() Result {
	return Result{Phase: m.phase, Readiness: m.tick.Readiness, TimedOut: m.timedOut}
}

func (m model) statusTickCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.status.Tick(m.ctx)
		return statusMsg{result: result, err: err}
	}
}

func (m model) scheduleStatus() tea.Cmd {
	return tea.Tick(m.status.Interval(), func(time.Time) tea.Msg { return statusDueMsg{} })
}

func (m model) finalizeCmd() tea.Cmd {
	return func() tea.Msg {
		ended, err := m.lifecycle.Finalize(m.ctx, meeting.FinalizeOptions{Confirm: m.confirm})
		return finalizedMsg{ended: ended, err: err}
	}
}

func (m model) readinessTickCmd() tea.Cmd {
	return func() tea.Msg {
		tick, err := m.readiness.Tick(m.ctx)
		return readinessMsg{tick: tick, err: err}
	}
}

func (m model) scheduleReadiness(first bool) tea.Cmd {
	delay := m.readiness.Interval()
	if first {
		remaining, err := m.readiness.CooldownRemaining()
		if err != nil {
			return func() tea.Msg { return readinessMsg{err: err} }
		}
		delay = remaining
	}
	return tea.Tick(delay, func(time.Time) tea.Msg { return readinessDueMsg{} })
}

func field(label, value string) string {
	return labelStyle.Render(label) + value
}

func flag(ready bool) string {
	if ready {
		return readyStyle.Render("ready")
	}
	return valueMuted.Render("pending")
}

func sessionMode(session meeting.Session) string {
	if session.IsScrum {
		return "scrum"
	}
	return "chat"
}

type statusDueMsg struct{}

type statusMsg struct {
	result meeting.TickResult
	err    error
}

type finalizedMsg struct {
	ended bool
	err   error
}

type readinessDueMsg struct{}

type readinessMsg struct {
	tick meeting.ReadinessTick
	err  error
}

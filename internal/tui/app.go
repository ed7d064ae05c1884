// Package tui presents the trials of a session in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/stimsched/internal/models"
	"github.com/fentz26/stimsched/internal/scheduler"
	"github.com/fentz26/stimsched/internal/session"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	shownStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(successColor).
			Foreground(fgColor).
			Bold(true).
			Width(9).
			Align(lipgloss.Center)

	hiddenStyle = lipgloss.NewStyle().
			Border(lipgloss.HiddenBorder()).
			Foreground(mutedColor).
			Width(9).
			Align(lipgloss.Center)
)

// App is the presentation screen model.
type App struct {
	svc  *session.Service
	keys keyMap
	help help.Model
	log  viewport.Model

	lines   []string
	message string
	width   int
	height  int

	now          func() time.Time
	sessionStart time.Time
	trialStart   time.Time
}

// Option configures an App.
type Option func(*App)

// WithClock replaces the wall clock the App reads its times from.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates the presentation screen for svc.
func New(svc *session.Service, opts ...Option) *App {
	a := &App{
		svc:  svc,
		keys: defaultKeyMap(),
		help: help.New(),
		log:  viewport.New(80, 8),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sessionStart = a.now()
	a.trialStart = a.sessionStart

	svc.Scheduler().OnVisibilityChange(a.onVisibilityChange)
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithMouseAllMotion())
	_, err := p.Run()
	return err
}

type frameMsg time.Time

func (a *App) frameCmd() tea.Cmd {
	period := time.Duration(a.svc.Experiment().FramePeriod() * float64(time.Second))
	return tea.Tick(period, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	a.beginTrial()
	return a.frameCmd()
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			if a.svc.Open() {
				a.endTrial(models.TrialOutcomeCancelled)
			}
			return a, tea.Quit
		case key.Matches(msg, a.keys.Start):
			a.startTrial()
		case key.Matches(msg, a.keys.Success):
			a.endTrial(models.TrialOutcomeSucceeded)
		case key.Matches(msg, a.keys.Cancel):
			a.endTrial(models.TrialOutcomeFailed)
		case key.Matches(msg, a.keys.Reinit):
			a.beginTrial()
		}

	case tea.MouseMsg:
		trial, _ := a.times()
		if err := a.svc.Sample(float64(msg.X), float64(msg.Y), trial); err != nil {
			a.fail(err)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.log.Width = msg.Width - 4
		a.log.Height = max(3, msg.Height-14)

	case frameMsg:
		trial, sess := a.times()
		if err := a.svc.Frame(context.Background(), trial, sess); err != nil {
			a.fail(err)
		}
		return a, a.frameCmd()
	}

	var cmd tea.Cmd
	a.log, cmd = a.log.Update(msg)
	return a, cmd
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	exp := a.svc.Experiment()
	header := titleStyle.Render("stimsched")
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[trial %d]", a.svc.Number()))
	header += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(
		fmt.Sprintf("%s clock, %.0f fps, %s", exp.TimeBase, exp.FrameRate, a.svc.Scheduler().State()))
	b.WriteString(header + "\n\n")

	b.WriteString(a.renderStage() + "\n")
	b.WriteString(panelStyle.Render(a.log.View()) + "\n")

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString(msgStyle.Render(a.message) + "\n")
	}

	b.WriteString(a.help.View(a.keys) + "\n")

	trial, sess := a.times()
	status := fmt.Sprintf(" trial %.3fs | session %.3fs", trial, sess)
	b.WriteString(statusBarStyle.Width(a.width).Render(status))
	return b.String()
}

// renderStage draws one box per shown stimulus, in shown order.
func (a *App) renderStage() string {
	sched := a.svc.Scheduler()
	if sched.Len() == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render("  no trial initialized")
	}

	visible := sched.Visibility()
	boxes := make([]string, 0, sched.Len())
	for i := 0; i < sched.Len(); i++ {
		st := a.svc.Stimuli().Get(sched.Name(i))
		if visible[i] {
			boxes = append(boxes, shownStyle.Render(st.Text))
		} else {
			boxes = append(boxes, hiddenStyle.Render(st.Name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// times returns the current trial and session times in seconds.
func (a *App) times() (trial, sess float64) {
	now := a.now()
	return now.Sub(a.trialStart).Seconds(), now.Sub(a.sessionStart).Seconds()
}

func (a *App) beginTrial() {
	a.trialStart = a.now()
	trial, sess := a.times()
	if err := a.svc.BeginTrial(context.Background(), trial, sess); err != nil {
		a.fail(err)
		return
	}
	a.message = fmt.Sprintf("Trial %d ready, press space to start", a.svc.Number())
	a.appendLog(fmt.Sprintf("-- trial %d initialized at %.3f", a.svc.Number(), sess))
}

func (a *App) startTrial() {
	trial, sess := a.times()
	if err := a.svc.StartTrial(context.Background(), trial, sess); err != nil {
		a.fail(err)
		return
	}
	a.message = fmt.Sprintf("Trial %d started", a.svc.Number())
}

func (a *App) endTrial(outcome models.TrialOutcome) {
	trial, sess := a.times()
	if err := a.svc.EndTrial(context.Background(), outcome, trial, sess); err != nil {
		a.fail(err)
		return
	}
	a.message = fmt.Sprintf("Trial %d %s, press r for the next one", a.svc.Number(), outcome)
	a.appendLog(fmt.Sprintf("-- trial %d %s at %.3f", a.svc.Number(), outcome, sess))
}

func (a *App) onVisibilityChange(s *scheduler.Scheduler, item int, visible bool, scheduledTime float64) {
	op := "hide"
	if visible {
		op = "show"
	}
	a.appendLog(fmt.Sprintf("%8.3f  %s %s", scheduledTime, op, s.Name(item)))
}

func (a *App) appendLog(line string) {
	a.lines = append(a.lines, line)
	a.log.SetContent(strings.Join(a.lines, "\n"))
	a.log.GotoBottom()
}

func (a *App) fail(err error) {
	a.message = "Error: " + err.Error()
}

// Lines returns the transition log.
func (a *App) Lines() []string {
	return append([]string(nil), a.lines...)
}

// Message returns the status message.
func (a *App) Message() string {
	return a.message
}

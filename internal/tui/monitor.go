package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/services"
)

// lingerAfterFinish keeps the final screen visible before the program exits.
const lingerAfterFinish = 2 * time.Second

const maxLogLines = 10

var workflowStates = []services.State{
	services.StateSubmitted,
	services.StateRunning,
	services.StateCompleted,
	services.StateDownloading,
	services.StateDone,
}

type Model struct {
	prompt    string
	model     string
	state     services.State
	reached   int
	task      *models.Task
	snapshots int
	lastPoll  *models.PollResult
	download  download.Progress
	outcome   *services.Outcome
	started   time.Time
	logs      []string
	spinner   spinner.Model
	progress  progress.Model
	width     int
	height    int
	quit      bool
}

type StateUpdate struct {
	State services.State
	Task  *models.Task
}

type SnapshotUpdate struct {
	Snapshot models.PollResult
}

type DownloadUpdate struct {
	Progress download.Progress
}

type LogMessage struct {
	Message string
}

// JobFinished carries the final outcome of the workflow.
type JobFinished struct {
	Outcome *services.Outcome
}

type lingerDone struct{}

func NewModel(prompt, model string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		prompt:   prompt,
		model:    model,
		reached:  -1,
		started:  time.Now(),
		logs:     []string{},
		spinner:  sp,
		progress: pr,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case StateUpdate:
		m = m.handleStateUpdate(msg)

	case SnapshotUpdate:
		m = m.handleSnapshotUpdate(msg)

	case DownloadUpdate:
		m.download = msg.Progress

	case LogMessage:
		m = m.handleLogMessage(msg)

	case JobFinished:
		m.outcome = msg.Outcome
		if msg.Outcome != nil {
			m = m.handleStateUpdate(StateUpdate{State: msg.Outcome.State, Task: msg.Outcome.Task})
		}
		cmds = append(cmds, tea.Tick(lingerAfterFinish, func(time.Time) tea.Msg { return lingerDone{} }))

	case lingerDone:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 40
	return m
}

func (m Model) handleStateUpdate(msg StateUpdate) Model {
	m.state = msg.State
	if idx := stateIndex(msg.State); idx > m.reached {
		m.reached = idx
	}
	if msg.Task != nil {
		m.task = msg.Task
	}
	return m
}

func (m Model) handleSnapshotUpdate(msg SnapshotUpdate) Model {
	m.snapshots++
	snapshot := msg.Snapshot
	m.lastPoll = &snapshot
	return m
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), msg.Message))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	return m
}

// Finished reports whether the workflow reached a terminal state.
func (m Model) Finished() bool {
	return m.outcome != nil || m.state.IsTerminal()
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("🎬 Video Generation Monitor"))
	s.WriteString("\n\n")

	// Summary
	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	taskID := "-"
	if m.task != nil {
		taskID = m.task.ID
	}
	summary := fmt.Sprintf("Model: %s | Task: %s | Polls: %d | Elapsed: %s",
		m.model, taskID, m.snapshots, time.Since(m.started).Round(time.Second))
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n")
	s.WriteString(summaryStyle.Render("Prompt: " + truncate(m.prompt, m.width-10)))
	s.WriteString("\n\n")

	// Workflow stages
	stageSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var stages strings.Builder
	stages.WriteString("📊 Workflow\n")
	stages.WriteString(strings.Repeat("─", 60) + "\n")
	for _, state := range workflowStates {
		stages.WriteString(m.stageLine(state) + "\n")
	}
	if m.state.IsTerminal() && m.state != services.StateDone {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		line := fmt.Sprintf("%s %s", getStateIcon(m.state), m.state)
		if m.outcome != nil {
			line += " " + m.outcome.Diagnostic()
		}
		stages.WriteString(errorStyle.Render(line) + "\n")
	}

	s.WriteString(stageSectionStyle.Render(stages.String()))
	s.WriteString("\n\n")

	// Logs section
	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	// Footer
	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'q' to quit | Logs: logs/mediagen_*.log"
	if m.outcome != nil && m.outcome.Artifact != nil {
		footer = "Saved to " + m.outcome.Artifact.Path + " | " + footer
	}
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

func (m Model) stageLine(state services.State) string {
	reached := m.reached >= stateIndex(state)
	current := m.state == state && !m.state.IsTerminal()

	icon := "⏸"
	color := "244"
	switch {
	case current:
		icon = m.spinner.View()
		color = "39"
	case reached:
		icon = getStateIcon(state)
		color = "82"
	}
	line := fmt.Sprintf("%s %-12s", icon, state)

	if current {
		switch state {
		case services.StateSubmitted, services.StateRunning:
			if m.lastPoll != nil {
				line += " status: " + m.lastPoll.RawStatus
				if m.lastPoll.Progress != nil {
					line += " " + m.progress.ViewAs(*m.lastPoll.Progress/100)
				}
			}
		case services.StateDownloading:
			if m.download.Total > 0 {
				line += " " + m.progress.ViewAs(m.download.Percent/100)
				line += fmt.Sprintf(" %s / %s", download.HumanSize(m.download.Written), download.HumanSize(m.download.Total))
			}
		}
	}

	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(line)
}

// stateIndex orders states along the happy path. Failure states are not on
// it and return -1.
func stateIndex(state services.State) int {
	for i, s := range workflowStates {
		if s == state {
			return i
		}
	}
	return -1
}

func getStateIcon(state services.State) string {
	switch state {
	case services.StateSubmitted:
		return "📨"
	case services.StateRunning:
		return "⚙️"
	case services.StateCompleted:
		return "🎞"
	case services.StateDownloading:
		return "⬇️"
	case services.StateDone:
		return "✅"
	case services.StateTimedOut:
		return "⌛"
	case services.StateFailed, services.StateDownloadFailed:
		return "❌"
	default:
		return "❓"
	}
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

package main

import (
	"fmt"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/download"
	"github.com/Pradhumn115/ruma-core/internal/storage"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// downloadProgressMsg carries a polled storage.Task snapshot into the
// bubbletea update loop; downloadDoneMsg/downloadErrMsg end the
// program, mirroring the surge TUI's message-per-lifecycle-event
// shape but driven by polling GetTask rather than a push channel,
// since Manager's EventBus is fire-and-forget.
type downloadProgressMsg storage.Task
type downloadDoneMsg storage.Task
type downloadErrMsg struct{ err error }

type downloadModel struct {
	engine    *download.Manager
	id        string
	task      storage.Task
	progress  progress.Model
	startedAt time.Time
	done      bool
	err       error
}

func newDownloadModel(engine *download.Manager, id string) downloadModel {
	return downloadModel{
		engine:    engine,
		id:        id,
		progress:  progress.New(progress.WithDefaultGradient()),
		startedAt: time.Now(),
	}
}

func (m downloadModel) Init() tea.Cmd {
	return pollTask(m.engine, m.id)
}

func pollTask(engine *download.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(250 * time.Millisecond)
		task, err := engine.GetTask(id)
		if err != nil {
			return downloadErrMsg{err}
		}
		switch task.Status {
		case "completed":
			return downloadDoneMsg(task)
		case "error":
			return downloadErrMsg{fmt.Errorf("download failed: %s", task.Filename)}
		default:
			return downloadProgressMsg(task)
		}
	}
}

func (m downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - 4
		return m, nil
	case downloadProgressMsg:
		m.task = storage.Task(msg)
		cmd := m.progress.SetPercent(m.task.Progress / 100)
		return m, tea.Batch(cmd, pollTask(m.engine, m.id))
	case downloadDoneMsg:
		m.task = storage.Task(msg)
		m.done = true
		return m, tea.Quit
	case downloadErrMsg:
		m.err = msg.err
		return m, tea.Quit
	case progress.FrameMsg:
		updated, cmd := m.progress.Update(msg)
		m.progress = updated.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m downloadModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(fmt.Sprintf("error: %v\n", m.err))
	}
	if m.done {
		return fmt.Sprintf("complete: %s in %s\n", m.task.Filename, time.Since(m.startedAt).Round(time.Second))
	}

	name := m.task.Filename
	if name == "" {
		name = "resolving..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s / %s  %.1f KB/s\n\nctrl+c/q to quit\n",
		name,
		m.progress.View(),
		humanBytes(m.task.Downloaded), humanBytes(m.task.TotalSize),
		m.task.Speed/1024.0,
	)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/e7canasta/scopeview/capture"
	"github.com/e7canasta/scopeview/internal/preview"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246")).
			Width(20)

	healthyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	deadStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)
)

type tickMsg time.Time

type frameMsg struct {
	frame capture.Frame
	ok    bool
}

type model struct {
	sup    *capture.Supervisor
	frames <-chan capture.Frame
	srv    *preview.Server

	stats     capture.Stats
	lastFrame capture.Frame
	spin      spinner.Model
	streamEnd bool
	width     int
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) waitForFrame() tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-m.frames
		return frameMsg{frame: frame, ok: ok}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitForFrame(), m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		m.stats = m.sup.Stats()
		return m, tickCmd()

	case frameMsg:
		if !msg.ok {
			m.streamEnd = true
			return m, tea.Quit
		}
		m.lastFrame = msg.frame
		if m.srv != nil && msg.frame.PixelFormat.Matches("MJPG") {
			m.srv.Broadcast(msg.frame.Data)
		}
		return m, m.waitForFrame()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	st := m.stats

	header := headerStyle.Width(max(m.width, 60)).Render("🔬 scopeview " + version)

	stateStyle := healthyStyle
	stateText := st.WatchdogState
	switch st.WatchdogState {
	case "degraded", "reopen-pending", "reconnecting":
		stateStyle = degradedStyle
		stateText = m.spin.View() + " " + stateText
	case "exhausted":
		stateStyle = deadStyle
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Device", st.Device)
	row("Mode", fmt.Sprintf("%s %s", st.Resolution, st.FourCC))
	row("Frames", fmt.Sprintf("%d", st.FrameCount))
	row("Real FPS", fmt.Sprintf("%.2f", st.FPSReal))
	row("Latency", fmt.Sprintf("%d ms", st.LatencyMS))
	row("Data", fmt.Sprintf("%.2f MB", float64(st.BytesRead)/1024/1024))
	row("Empty reads", fmt.Sprintf("%d (streak %d)", st.EmptyReads, st.ConsecutiveEmpty))
	row("Reopens", fmt.Sprintf("%d", st.Reopens))
	row("Failed reconnects", fmt.Sprintf("%d", st.Reconnects))
	row("Watchdog", stateStyle.Render(stateText))
	if m.lastFrame.Seq > 0 {
		row("Last frame", fmt.Sprintf("#%d at %s (%.1f KB)",
			m.lastFrame.Seq,
			m.lastFrame.Timestamp.Format("15:04:05.000"),
			float64(len(m.lastFrame.Data))/1024))
	}
	if m.srv != nil {
		row("Preview clients", fmt.Sprintf("%d", m.srv.ClientCount()))
	}

	status := "q: quit"
	if m.streamEnd {
		status = "stream ended"
	}

	return header + "\n" +
		panelStyle.Render(b.String()) + "\n" +
		statusBarStyle.Width(max(m.width, 60)).Render(status) + "\n"
}

// runDashboard runs the live stats dashboard until the user quits or
// the stream ends.
func runDashboard(ctx context.Context, sup *capture.Supervisor, frames <-chan capture.Frame, srv *preview.Server) error {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(degradedStyle))
	m := model{sup: sup, frames: frames, srv: srv, stats: sup.Stats(), spin: sp}
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err == tea.ErrProgramKilled {
		return nil
	}
	return err
}

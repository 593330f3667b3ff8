package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/synchcore/internal/intersection"
	"github.com/Iron-Ham/synchcore/internal/simulation"
	"github.com/Iron-Ham/synchcore/internal/tui/styles"
)

// DefaultRefresh is how often the view polls when no interval is given.
const DefaultRefresh = 100 * time.Millisecond

// SnapshotSource is what the live view polls.
type SnapshotSource interface {
	Snapshot() intersection.Snapshot
}

type tickMsg time.Time

// doneMsg carries the result of the traffic run into the program.
type doneMsg struct {
	report *simulation.TrafficReport
	err    error
}

// Model is the bubbletea model of the live intersection view.
type Model struct {
	src     SnapshotSource
	refresh time.Duration
	planned int

	spinner spinner.Model
	snap    intersection.Snapshot
	started time.Time
	elapsed time.Duration
	width   int

	done     bool
	quitting bool
	report   *simulation.TrafficReport
	err      error
}

// NewModel creates a view of src for a run of planned vehicles.
func NewModel(src SnapshotSource, planned int, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Primary
	return Model{
		src:     src,
		refresh: refresh,
		planned: planned,
		spinner: sp,
		snap:    src.Snapshot(),
		started: time.Now(),
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner and the polling loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.snap = m.src.Snapshot()
		m.elapsed = time.Since(m.started)
		return m, m.tick()

	case doneMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		m.snap = m.src.Snapshot()
		m.elapsed = time.Since(m.started)
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Done reports whether the run finished while the view was up.
func (m Model) Done() bool {
	return m.done
}

// Quitting reports whether the user closed the view.
func (m Model) Quitting() bool {
	return m.quitting
}

// View renders the current snapshot.
func (m Model) View() string {
	var b strings.Builder

	status := m.spinner.View() + " running"
	if m.done {
		status = styles.StatusBadge(m.err == nil && m.report != nil && m.report.OK())
	}
	b.WriteString(styles.Title.Render("synchcore intersection"))
	b.WriteString("\n")
	status += styles.Muted.Render(fmt.Sprintf("  %d/%d exited  %d inside  %d waiting  %s",
		m.snap.Exited, m.planned, len(m.snap.Active), m.snap.Waiting(),
		m.elapsed.Round(100*time.Millisecond)))
	if m.width > 0 && lipgloss.Width(status) > m.width {
		status = truncate(status, m.width)
	}
	b.WriteString(status)
	b.WriteString("\n\n")

	lanes := make([]string, 0, len(m.snap.Directions))
	for _, d := range m.snap.Directions {
		lanes = append(lanes, renderLane(d, m.snap.Threshold))
	}
	box := styles.ContentBox
	if m.width > 0 {
		box = box.MaxWidth(m.width)
	}
	b.WriteString(box.Render(strings.Join(lanes, "\n")))
	b.WriteString("\n")

	b.WriteString(renderActive(m.snap.Active, m.width))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(styles.Error.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(styles.HelpBar.Render("q quit"))
	return b.String()
}

func renderLane(d intersection.DirectionState, threshold int) string {
	bar := strings.Repeat("■", d.InFlight) + strings.Repeat("·", max(threshold-d.InFlight, 0))
	state := "open"
	if !d.Enabled {
		state = "throttled"
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		styles.LaneName.Render(d.Direction.String()),
		styles.LaneStyle(d.Enabled, d.Waiting).Width(threshold+2).Render(bar),
		styles.Label.Render(state),
		styles.Muted.Render(fmt.Sprintf("waiting %-3d admitted %d", d.Waiting, d.Admitted)),
	)
}

func renderActive(active []intersection.Vehicle, width int) string {
	if len(active) == 0 {
		return styles.Subtitle.Render("intersection empty")
	}
	parts := make([]string, len(active))
	for i, v := range active {
		parts[i] = v.String()
	}
	line := "inside: " + strings.Join(parts, "  ")
	if width > 0 && lipgloss.Width(line) > width {
		line = truncate(line, width)
	}
	return styles.Text.Render(line)
}

// truncate shortens s to width visual columns, ANSI sequences included.
func truncate(s string, width int) string {
	if width <= 3 {
		return "..."
	}
	return ansi.Truncate(s, width, "...")
}

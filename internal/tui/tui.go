// Package tui renders a live swarm execution as a terminal activity feed:
// a bounded list of per-agent lifecycle entries in arrival order (oldest
// first, oldest dropped when full) driven by scheduler.EventSink callbacks.
//
// Grounded on the teacher's internal/ui/activity_feed_panel.go (bounded
// ring of ActivityFeedEntry, spinner frame counter, lipgloss rendering)
// generalized from per-tool-call entries to per-agent swarm entries; the
// teacher's bubbletea root program (cmd/gokin/main.go) supplies the Model/
// Update/View idiom this package's Program follows.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hybridcore/internal/core"
	"hybridcore/internal/scheduler"
)

// maxEntries bounds the feed so a long swarm run doesn't grow memory
// unboundedly, matching the teacher's maxActivityEntries discipline.
const maxEntries = 16

var (
	colorSuccess = lipgloss.Color("#059669")
	colorError   = lipgloss.Color("#DC2626")
	colorRunning = lipgloss.Color("#60A5FA")
	colorDim     = lipgloss.Color("#6B7280")
	colorAccent  = lipgloss.Color("#F472B6")
	colorBorder  = lipgloss.Color("#1E293B")
)

type entry struct {
	id        string
	name      string
	status    core.AgentStatus
	startedAt time.Time
	duration  time.Duration
	detail    string
}

// eventMsg carries one sink callback into the bubbletea Update loop.
type eventMsg struct {
	kind   string
	id     string
	name   string
	role   string
	status core.AgentStatus
	detail string
	stats  scheduler.Statistics
}

// Model is the bubbletea model backing the activity feed.
type Model struct {
	mu       sync.Mutex
	entries  []entry
	index    map[string]int
	spinner  spinner.Model
	total    int
	done     bool
	finalMsg string
}

// NewModel creates an empty feed.
func NewModel() *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorRunning)
	return &Model{index: make(map[string]int), spinner: s}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.apply(msg)
		if msg.kind == "completed" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) apply(msg eventMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg.kind {
	case "started":
		m.total = msg.stats.Total
	case "added":
		m.upsert(entry{id: msg.id, name: msg.name, status: core.StatusPending, startedAt: time.Now()})
	case "updated":
		if idx, ok := m.index[msg.id]; ok {
			m.entries[idx].status = msg.status
			if msg.status == core.StatusRunning {
				m.entries[idx].startedAt = time.Now()
			}
		}
	case "agentCompleted", "agentFailed":
		if idx, ok := m.index[msg.id]; ok {
			m.entries[idx].duration = time.Since(m.entries[idx].startedAt)
			if msg.kind == "agentCompleted" {
				m.entries[idx].status = core.StatusCompleted
			} else {
				m.entries[idx].status = core.StatusFailed
			}
			m.entries[idx].detail = msg.detail
		}
	case "cancelled":
		m.finalMsg = "swarm cancelled"
	case "completed":
		m.done = true
		m.finalMsg = fmt.Sprintf("completed: %d/%d succeeded, %d failed, %d cancelled",
			msg.stats.Completed, msg.stats.Total, msg.stats.Failed, msg.stats.Cancelled)
	}
}

func (m *Model) upsert(e entry) {
	if idx, ok := m.index[e.id]; ok {
		m.entries[idx] = e
		return
	}
	if len(m.entries) >= maxEntries {
		oldID := m.entries[0].id
		delete(m.index, oldID)
		m.entries = m.entries[1:]
		for id, idx := range m.index {
			m.index[id] = idx - 1
		}
	}
	m.index[e.id] = len(m.entries)
	m.entries = append(m.entries, e)
}

func (m *Model) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	headerStyle := lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(colorDim)
	successStyle := lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(colorError)
	borderStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d agents)\n", headerStyle.Render("Swarm"), m.total)

	for _, e := range m.entries {
		var icon string
		switch e.status {
		case core.StatusRunning, core.StatusPending, core.StatusReady:
			icon = m.spinner.View()
		case core.StatusCompleted:
			icon = successStyle.Render("✓")
		case core.StatusFailed, core.StatusCancelled:
			icon = errorStyle.Render("✗")
		}
		dur := e.duration
		if dur == 0 && !e.startedAt.IsZero() {
			dur = time.Since(e.startedAt)
		}
		fmt.Fprintf(&b, "%s %-20s %s\n", icon, e.name, dimStyle.Render(dur.Round(time.Millisecond).String()))
	}

	if m.finalMsg != "" {
		b.WriteString("\n" + dimStyle.Render(m.finalMsg) + "\n")
	}

	return borderStyle.Render(strings.TrimSuffix(b.String(), "\n"))
}

// Sink is a scheduler.EventSink backed by a running bubbletea Program. The
// caller starts the Program (Run) concurrently and feeds it via Sink's
// methods, which forward into the program's message loop.
type Sink struct {
	program *tea.Program
}

// NewSink wires a Sink to an already-started bubbletea Program.
func NewSink(p *tea.Program) *Sink {
	return &Sink{program: p}
}

func (s *Sink) Started(count int) {
	s.program.Send(eventMsg{kind: "started", stats: scheduler.Statistics{Total: count}})
}

func (s *Sink) AgentAdded(id, name, role string) {
	s.program.Send(eventMsg{kind: "added", id: id, name: name, role: role})
}

func (s *Sink) AgentUpdated(id string, status core.AgentStatus) {
	s.program.Send(eventMsg{kind: "updated", id: id, status: status})
}

func (s *Sink) AgentCompleted(id, output string) {
	s.program.Send(eventMsg{kind: "agentCompleted", id: id, detail: output})
}

func (s *Sink) AgentFailed(id, errMsg string) {
	s.program.Send(eventMsg{kind: "agentFailed", id: id, detail: errMsg})
}

func (s *Sink) Cancelled() {
	s.program.Send(eventMsg{kind: "cancelled"})
}

func (s *Sink) Completed(stats scheduler.Statistics) {
	s.program.Send(eventMsg{kind: "completed", stats: stats})
}

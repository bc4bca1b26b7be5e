// Package ui renders a live terminal dashboard of an open project: one row
// per source file with its parse and diagnostic state, plus a health bar.
package ui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"unimozer/internal/uml"
)

type EventKind int

const (
	// EventGraph carries a new class graph and its parse status.
	EventGraph EventKind = iota
	// EventDiagnostics carries the problem count of one file.
	EventDiagnostics
	// EventStatus carries a status-line message.
	EventStatus
	// EventFiles replaces the file list.
	EventFiles
)

type Event struct {
	Kind   EventKind
	Graph  uml.Graph
	Path   string
	Count  int
	Status string
	Files  []string
}

type fileState struct {
	path     string
	invalid  bool
	problems int
}

func (f fileState) label() string {
	switch {
	case f.invalid:
		return "invalid"
	case f.problems == 1:
		return "1 problem"
	case f.problems > 1:
		return fmt.Sprintf("%d problems", f.problems)
	default:
		return "ok"
	}
}

func (f fileState) healthy() bool { return !f.invalid && f.problems == 0 }

type eventMsg Event
type doneMsg struct{}

type dashboardModel struct {
	title     string
	root      string
	events    <-chan Event
	done      <-chan struct{}
	spinner   spinner.Model
	prog      progress.Model
	files     []fileState
	index     map[string]int
	classes   int
	relations int
	status    string
	width     int
	quitting  bool
}

// NewDashboard returns a Bubble Tea model fed by events until done closes.
// Paths are shown relative to root.
func NewDashboard(title, root string, files []string, events <-chan Event, done <-chan struct{}) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	m := &dashboardModel{
		title:   title,
		root:    root,
		events:  events,
		done:    done,
		spinner: sp,
		prog:    prog,
		width:   80,
	}
	m.setFiles(files)
	return m
}

func (m *dashboardModel) setFiles(files []string) {
	old := m.index
	prev := m.files
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	m.files = make([]fileState, 0, len(sorted))
	m.index = make(map[string]int, len(sorted))
	for _, path := range sorted {
		st := fileState{path: path}
		if i, ok := old[path]; ok {
			st = prev[i]
		}
		m.index[path] = len(m.files)
		m.files = append(m.files, st)
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.apply(Event(msg))
		return m, tea.Batch(cmd, m.listen())
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *dashboardModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-m.events:
			if !ok {
				return doneMsg{}
			}
			return eventMsg(ev)
		case <-m.done:
			return doneMsg{}
		}
	}
}

func (m *dashboardModel) apply(ev Event) tea.Cmd {
	switch ev.Kind {
	case EventFiles:
		m.setFiles(ev.Files)
	case EventGraph:
		m.classes, m.relations = len(ev.Graph.Nodes), len(ev.Graph.Edges)
		m.status = ev.Status
		invalid := make(map[string]bool)
		for _, n := range ev.Graph.Nodes {
			if n.IsInvalid {
				invalid[n.Path] = true
			}
		}
		for i := range m.files {
			m.files[i].invalid = invalid[m.files[i].path]
		}
	case EventDiagnostics:
		if i, ok := m.index[ev.Path]; ok {
			m.files[i].problems = ev.Count
		}
	case EventStatus:
		m.status = ev.Status
	}
	return m.prog.SetPercent(m.health())
}

// health is the share of files that parse and have no problems.
func (m *dashboardModel) health() float64 {
	if len(m.files) == 0 {
		return 1
	}
	ok := 0
	for _, f := range m.files {
		if f.healthy() {
			ok++
		}
	}
	return float64(ok) / float64(len(m.files))
}

func (m *dashboardModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%d classes, %d relations)", m.title, m.classes, m.relations)
	if m.quitting {
		header = "stopped: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := m.width - statusWidth - 4
	if nameWidth < 20 {
		nameWidth = 20
	}
	for _, f := range m.files {
		label := f.label()
		styled := styleLabel(f).Render(fmt.Sprintf("%12s", label))
		fmt.Fprintf(&b, "  %s %s\n", styled, truncate(m.display(f.path), nameWidth))
	}

	b.WriteString("\n")
	b.WriteString(m.prog.View())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(truncate(firstLine(m.status), m.width)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *dashboardModel) display(path string) string {
	if m.root == "" {
		return path
	}
	if rel, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func styleLabel(f fileState) lipgloss.Style {
	switch {
	case f.invalid:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case f.problems > 0:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}

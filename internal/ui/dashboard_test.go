package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unimozer/internal/uml"
)

func newTestDashboard(files ...string) (*dashboardModel, chan Event, chan struct{}) {
	events := make(chan Event, 4)
	done := make(chan struct{})
	m := NewDashboard("demo", "/p/src", files, events, done).(*dashboardModel)
	return m, events, done
}

func TestGraphAndDiagnosticsUpdateRows(t *testing.T) {
	m, _, _ := newTestDashboard("/p/src/B.java", "/p/src/A.java")

	m.Update(eventMsg{Kind: EventGraph, Status: "Syntax error in B.java", Graph: uml.Graph{
		Nodes: []uml.Node{
			{ID: "A", Path: "/p/src/A.java"},
			{ID: "B", Path: "/p/src/B.java", IsInvalid: true},
		},
	}})
	m.Update(eventMsg{Kind: EventDiagnostics, Path: "/p/src/A.java", Count: 2})

	require.Len(t, m.files, 2)
	assert.Equal(t, "2 problems", m.files[0].label())
	assert.Equal(t, "invalid", m.files[1].label())
	assert.Zero(t, m.health())

	view := m.View()
	assert.Contains(t, view, "demo (2 classes, 0 relations)")
	assert.Contains(t, view, "A.java")
	assert.Contains(t, view, "Syntax error in B.java")

	m.Update(eventMsg{Kind: EventDiagnostics, Path: "/p/src/A.java", Count: 0})
	assert.Equal(t, 0.5, m.health())
}

func TestFilesEventKeepsKnownState(t *testing.T) {
	m, _, _ := newTestDashboard("/p/src/A.java")
	m.Update(eventMsg{Kind: EventDiagnostics, Path: "/p/src/A.java", Count: 1})
	m.Update(eventMsg{Kind: EventFiles, Files: []string{"/p/src/C.java", "/p/src/A.java"}})

	require.Len(t, m.files, 2)
	assert.Equal(t, "1 problem", m.files[0].label())
	assert.Equal(t, "ok", m.files[1].label())
}

func TestListenEndsOnDone(t *testing.T) {
	m, events, done := newTestDashboard()
	events <- Event{Kind: EventStatus, Status: "hello"}
	assert.Equal(t, eventMsg{Kind: EventStatus, Status: "hello"}, m.listen()())

	close(done)
	msg := m.listen()()
	assert.Equal(t, doneMsg{}, msg)
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "stopped:")
}

func TestQuitKey(t *testing.T) {
	m, _, _ := newTestDashboard()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the capture monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Monitor wraps the running TUI program
type Monitor struct {
	program *tea.Program
	quit    chan struct{}
}

// NewMonitor creates the capture monitor TUI
func NewMonitor() *Monitor {
	quit := make(chan struct{})
	model := Model{quit: quit}
	return &Monitor{
		program: tea.NewProgram(model, tea.WithAltScreen()),
		quit:    quit,
	}
}

// Run blocks until the TUI exits
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Send pushes a status update into the TUI
func (m *Monitor) Send(msg StatusMsg) {
	m.program.Send(msg)
}

// QuitChan is closed when the user quits the TUI
func (m *Monitor) QuitChan() <-chan struct{} {
	return m.quit
}

// Stop terminates the TUI program
func (m *Monitor) Stop() {
	m.program.Quit()
}

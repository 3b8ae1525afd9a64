// ABOUTME: Bubbletea model for the capture monitor TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Capture target
	deviceName string
	loopback   bool
	running    bool

	// Stream format
	codec      string
	sampleRate int
	channels   int

	// Ring health
	buffered int
	capacity int
	dropped  uint64
	packets  uint64

	// Tap clients
	clients int

	// Last audio timestamp on the device clock, in seconds
	lastTime float64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	quit chan struct{}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderRing()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders the capture target and state
func (m Model) renderHeader() string {
	status := "Stopped"
	if m.running {
		status = fmt.Sprintf("Capturing %s", m.deviceName)
	}

	mode := "microphone"
	if m.loopback {
		mode = "loopback"
	}

	return fmt.Sprintf(`┌─ Soundtap ───────────────────────────────────────────┐
│ Status: %-45s │
│ Mode:   %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 45), mode)
}

// renderStreamInfo renders the negotiated stream format
func (m Model) renderStreamInfo() string {
	if m.codec == "" {
		return "│ No stream                                            │\n"
	}

	return fmt.Sprintf("│ Format: %s %dHz %s%-24s │\n│ Clients: %-43d │\n",
		m.codec, m.sampleRate, channelName(m.channels), "", m.clients)
}

// renderRing renders ring buffer health
func (m Model) renderRing() string {
	fillBar := "░░░░░░░░░░"
	percent := 0
	if m.capacity > 0 {
		fillBar = renderBar(m.buffered, m.capacity, 10)
		percent = m.buffered * 100 / m.capacity
	}

	return fmt.Sprintf("│                                                      │\n"+
		"│ Ring:   [%s] %3d%%%-28s │\n"+
		"│ Audio:  t=%-10.2fs packets=%-10d%-10s │\n"+
		"│ Dropped: %-10d bytes%-26s │\n",
		fillBar, percent, "",
		m.lastTime, m.packets, "",
		m.dropped, "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `├──────────────────────────────────────────────────────┤
│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Buffered: %d / %d bytes                            │
│   Window: %.2fs                                      │
`, m.buffered, m.capacity, float64(m.buffered)/float64(maxInt(m.capacity, 1)))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.quit != nil {
			close(m.quit)
			m.quit = nil
		}
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Running != nil {
		m.running = *msg.Running
	}
	if msg.DeviceName != "" {
		m.deviceName = msg.DeviceName
		m.loopback = msg.Loopback
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.Capacity != 0 {
		m.buffered = msg.Buffered
		m.capacity = msg.Capacity
		m.dropped = msg.Dropped
		m.packets = msg.Packets
		m.lastTime = msg.LastTime
	}
	if msg.Clients >= 0 {
		m.clients = msg.Clients
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Running    *bool
	DeviceName string
	Loopback   bool
	Codec      string
	SampleRate int
	Channels   int
	Buffered   int
	Capacity   int
	Dropped    uint64
	Packets    uint64
	LastTime   float64
	Clients    int
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

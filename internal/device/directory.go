// ABOUTME: Device directory service for audio endpoint selection
// ABOUTME: Holds an enumerated snapshot of output and input devices
package device

import (
	"fmt"
)

// Flow is the data direction of an audio endpoint
type Flow int

const (
	FlowOutput Flow = iota // render endpoint; capturing it means loopback
	FlowInput              // capture endpoint (microphone)
)

// String returns a human-readable flow name
func (f Flow) String() string {
	if f == FlowOutput {
		return "output"
	}
	return "input"
}

// Entry describes one audio endpoint
type Entry struct {
	ID      string // opaque platform-specific identifier
	Name    string // friendly name reported by the platform
	Flow    Flow
	Default bool
}

// Enumerator lists the audio endpoints of a platform backend.
// Implementations skip entries whose properties cannot be read.
type Enumerator interface {
	Devices() ([]Entry, error)
}

// Directory is a snapshot of available audio endpoints.
// It replaces process-global device state: construct one per run,
// pass it to the capture session, and let it go out of scope.
type Directory struct {
	entries []Entry
}

// NewDirectory enumerates devices and returns a directory snapshot
func NewDirectory(enum Enumerator) (*Directory, error) {
	entries, err := enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}
	return &Directory{entries: entries}, nil
}

// Len returns the number of entries
func (d *Directory) Len() int {
	return len(d.entries)
}

// Entries returns all entries in enumeration order
func (d *Directory) Entries() []Entry {
	return d.entries
}

// At returns the entry at the given index
func (d *Directory) At(index int) (Entry, error) {
	if index < 0 || index >= len(d.entries) {
		return Entry{}, fmt.Errorf("device index %d out of range (have %d devices)", index, len(d.entries))
	}
	return d.entries[index], nil
}

// Names returns display names for all entries, in index order.
// Default endpoints get fixed names so the common choice is stable
// across hardware changes.
func (d *Directory) Names() []string {
	names := make([]string, len(d.entries))
	for i, e := range d.entries {
		names[i] = DisplayName(e)
	}
	return names
}

// DisplayName formats a single entry for display
func DisplayName(e Entry) string {
	if e.Default {
		if e.Flow == FlowOutput {
			return "Default output (System Sound)"
		}
		return "Default input (Microphone)"
	}
	if e.Flow == FlowOutput {
		return "Output: " + e.Name
	}
	return "Input: " + e.Name
}

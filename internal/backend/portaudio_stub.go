//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package backend

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
)

// PortAudio capture backend (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio() (*PortAudio, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

// Devices enumerates input endpoints
func (p *PortAudio) Devices() ([]device.Entry, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

// Open activates a capture stream
func (p *PortAudio) Open(entry device.Entry, bufferDuration time.Duration) (capture.Stream, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

// Close terminates the PortAudio library
func (p *PortAudio) Close() error {
	return nil
}

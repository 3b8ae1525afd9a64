// ABOUTME: High-level Tap API for live audio capture
// ABOUTME: Composes a platform backend, device directory, and capture session
package soundtap

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/backend"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
)

// Config holds tap configuration
type Config struct {
	// DeviceIndex selects a device from ListDevices order
	DeviceIndex int

	// StreamDuration is the device buffering interval (default 20ms)
	StreamDuration time.Duration

	// File feeds capture from an MP3 or FLAC file instead of hardware
	File string
}

// CaptureBackend enumerates devices and activates capture streams
type CaptureBackend interface {
	device.Enumerator
	capture.Backend
	Close() error
}

// Device describes a capturable endpoint
type Device struct {
	Name     string
	Loopback bool
	Default  bool
}

// Tap is a running capture of one device
type Tap struct {
	backend CaptureBackend
	session *capture.Session
}

// ListDevices enumerates capturable endpoints in selection order
func ListDevices() ([]Device, error) {
	b, err := backend.NewMalgo()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	defer b.Close()

	dir, err := device.NewDirectory(b)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, dir.Len())
	for _, e := range dir.Entries() {
		devices = append(devices, Device{
			Name:     device.DisplayName(e),
			Loopback: e.Flow == device.FlowOutput,
			Default:  e.Default,
		})
	}
	return devices, nil
}

// New opens the selected device and starts capturing
func New(cfg Config) (*Tap, error) {
	var b CaptureBackend
	var err error
	if cfg.File != "" {
		b, err = backend.NewFileFeed(cfg.File)
	} else {
		b, err = backend.NewMalgo()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	return NewWithBackend(cfg, b)
}

// NewWithBackend opens a tap on a caller-supplied backend. The tap takes
// ownership of the backend and closes it with the session.
func NewWithBackend(cfg Config, b CaptureBackend) (*Tap, error) {
	dir, err := device.NewDirectory(b)
	if err != nil {
		b.Close()
		return nil, err
	}

	session, err := capture.NewSession(dir, b, capture.Config{
		DeviceIndex:    cfg.DeviceIndex,
		StreamDuration: cfg.StreamDuration,
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	return &Tap{backend: b, session: session}, nil
}

// Info returns the negotiated capture format
func (t *Tap) Info() audio.Info {
	return t.session.GetInfo()
}

// Device returns the display name of the captured endpoint
func (t *Tap) Device() string {
	return device.DisplayName(t.session.Device())
}

// Loopback reports whether the tap captures an output device
func (t *Tap) Loopback() bool {
	return t.session.Loopback()
}

// Read copies captured audio into dst, returning the byte count and the
// device-clock time of the first byte
func (t *Tap) Read(dst []byte) (int, float64) {
	return t.session.Read(dst)
}

// JumpToTime moves the read position to the given device-clock time,
// clamped into the retained window
func (t *Tap) JumpToTime(ts float64) {
	t.session.JumpToTime(ts)
}

// Flush discards all buffered, unread audio
func (t *Tap) Flush() {
	t.session.Flush()
}

// Buffered returns the number of unread bytes
func (t *Tap) Buffered() int {
	return t.session.Buffered()
}

// Err delivers a fatal capture error, after which the tap should be closed
func (t *Tap) Err() <-chan error {
	return t.session.Err()
}

// Session exposes the underlying capture session for server wiring
func (t *Tap) Session() *capture.Session {
	return t.session
}

// Close stops capturing and releases the backend
func (t *Tap) Close() error {
	err := t.session.Close()
	if berr := t.backend.Close(); err == nil {
		err = berr
	}
	return err
}

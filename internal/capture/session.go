// ABOUTME: Capture session orchestrating negotiation, ring, loop, and sink
// ABOUTME: Owns the Uninitialized->Negotiating->Running->Stopped lifecycle
package capture

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
	"github.com/google/uuid"
)

// State is the session lifecycle phase. Transitions run one direction
// only; there is no pause or resume.
type State int

const (
	StateUninitialized State = iota
	StateNegotiating
	StateRunning
	StateStopped
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// Config selects the capture target
type Config struct {
	// DeviceIndex selects an entry from the device directory
	DeviceIndex int

	// StreamDuration is the device's internal buffering interval.
	// Zero means the 20ms default.
	StreamDuration time.Duration
}

// DefaultStreamDuration keeps hardware latency in the tens of milliseconds
const DefaultStreamDuration = 20 * time.Millisecond

// newKeepAliveSink is swapped by tests that have no audio hardware
var newKeepAliveSink = func(format audio.Format) (io.Closer, error) {
	return NewKeepAliveSink(format)
}

// Session captures one device into a one-second ring buffer and exposes
// the consumer contract: Read, JumpToTime, Flush, GetInfo.
type Session struct {
	id    string
	entry device.Entry

	stream    Stream
	ring      *Ring
	loop      *Loop
	keepAlive io.Closer // nil unless loopback
	info      audio.Info
	loopback  bool

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	closeErr  error
}

// NewSession activates the selected device and starts capturing.
// Any platform failure during negotiation is fatal: the session tears
// down whatever it acquired and returns the error.
func NewSession(dir *device.Directory, backend Backend, cfg Config) (*Session, error) {
	s := &Session{
		id:    uuid.New().String(),
		state: StateNegotiating,
	}

	if cfg.StreamDuration == 0 {
		cfg.StreamDuration = DefaultStreamDuration
	}

	entry, err := dir.At(cfg.DeviceIndex)
	if err != nil {
		return nil, err
	}
	s.entry = entry
	s.loopback = entry.Flow == device.FlowOutput

	stream, err := backend.Open(entry, cfg.StreamDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to activate device %q: %w", device.DisplayName(entry), err)
	}
	s.stream = stream

	format := stream.Format()
	if format.Encoding != audio.EncodingFloat32 {
		stream.Close()
		return nil, fmt.Errorf("device %q has native format %s, only float32 capture is supported",
			device.DisplayName(entry), format.Encoding)
	}

	s.info = audio.Info{
		Format:         audio.EncodingFloat32,
		Channels:       format.Channels,
		SampleRate:     format.SampleRate,
		BytesPerSample: format.BytesPerSample(),
	}
	s.ring = NewRing(format.SampleRate, format.BytesPerSample())

	// Loopback targets need a renderer on the engine before capture
	// starts, or a shared-mode engine may never deliver a packet.
	if s.loopback {
		sink, err := newKeepAliveSink(format)
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to start keep-alive sink: %w", err)
		}
		s.keepAlive = sink
	}

	// Wake at half the device buffer period so a wake can never miss
	// more than one buffer's worth of packets.
	bufferPeriod := time.Duration(stream.BufferFrames()) * time.Second / time.Duration(format.SampleRate)
	interval := bufferPeriod / 2
	if interval <= 0 {
		interval = cfg.StreamDuration / 2
	}

	s.loop = NewLoop(stream, s.ring, interval)
	go s.loop.Run()

	if err := stream.Start(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to start capture stream: %w", err)
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	log.Printf("Capture session %s running: %s (%dHz, %d channels, loopback=%v)",
		s.id[:8], device.DisplayName(entry), format.SampleRate, format.Channels, s.loopback)

	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the captured device entry
func (s *Session) Device() device.Entry {
	return s.entry
}

// Loopback reports whether the session captures an output device
func (s *Session) Loopback() bool {
	return s.loopback
}

// GetInfo returns the negotiated stream description
func (s *Session) GetInfo() audio.Info {
	return s.info
}

// Read copies buffered audio into dst and returns the byte count and the
// absolute device-clock time of the first byte. Consumer calls must not
// overlap each other, but may come from any goroutine.
func (s *Session) Read(dst []byte) (int, float64) {
	return s.ring.Read(dst)
}

// JumpToTime moves the read position to the given absolute time, clamped
// into the currently retained window
func (s *Session) JumpToTime(t float64) {
	s.ring.JumpToTime(t)
}

// Flush discards all buffered, unread audio
func (s *Session) Flush() {
	s.ring.Flush()
}

// Buffered returns the number of unread bytes in the ring
func (s *Session) Buffered() int {
	return s.ring.Buffered()
}

// Dropped returns the bytes lost to ring overflow so far
func (s *Session) Dropped() uint64 {
	return s.ring.Dropped()
}

// Packets returns the number of hardware packets captured so far
func (s *Session) Packets() uint64 {
	return s.loop.Packets()
}

// Err delivers a fatal capture-loop error. A session that reports one
// has stopped producing and should be closed.
func (s *Session) Err() <-chan error {
	return s.loop.Err()
}

// Close stops the session. Teardown order mirrors startup in reverse:
// capture loop, capture stream, keep-alive sink. The ring stays readable
// so consumers can drain what was already captured.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()

		s.teardown()
		log.Printf("Capture session %s stopped", s.id[:8])
	})
	return s.closeErr
}

func (s *Session) teardown() {
	if s.loop != nil {
		s.loop.Stop()
	}
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			log.Printf("Warning: capture stream stop error: %v", err)
		}
		if err := s.stream.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close capture stream: %w", err)
		}
	}
	if s.keepAlive != nil {
		if err := s.keepAlive.Close(); err != nil {
			log.Printf("Warning: keep-alive close error: %v", err)
		}
		s.keepAlive = nil
	}
}

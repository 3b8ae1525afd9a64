// ABOUTME: Backend and Stream interfaces for platform capture providers
// ABOUTME: Defines the packet tuple delivered by hardware capture paths
package capture

import (
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
)

// TicksPerSecond is the resolution of hardware packet timestamps (100ns units)
const TicksPerSecond = 10_000_000

// Packet is one hardware delivery of captured audio.
// When Silent is set the device reported a span of silence: Data may be
// nil or stale and the receiver must zero-fill Length bytes instead.
type Packet struct {
	Data   []byte
	Length int // payload size in bytes
	Silent bool
	Ticks  uint64 // device clock timestamp in TicksPerSecond units
}

// Time returns the packet timestamp in seconds
func (p Packet) Time() float64 {
	return float64(p.Ticks) / TicksPerSecond
}

// Stream is an activated capture stream on a single device.
// NextPacket never blocks: it reports ok=false when no packet is pending.
type Stream interface {
	// Format returns the device's native mix format
	Format() audio.Format

	// BufferFrames returns the device's internal buffer size in frames
	BufferFrames() int

	// Start begins packet delivery
	Start() error

	// Stop halts packet delivery
	Stop() error

	// NextPacket returns the next pending packet, if any
	NextPacket() (pkt Packet, ok bool, err error)

	// Close releases the stream's platform resources
	Close() error
}

// Backend activates capture streams on enumerated devices.
// Exactly one production implementation exists per platform subsystem;
// tests substitute scripted backends.
type Backend interface {
	// Open activates the device and prepares a capture stream with the
	// given internal buffering interval. Loopback capture is implied when
	// the entry is an output-flow device.
	Open(entry device.Entry, bufferDuration time.Duration) (Stream, error)
}

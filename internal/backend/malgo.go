// ABOUTME: Production capture backend built on malgo/miniaudio
// ABOUTME: Enumerates endpoints and delivers capture packets with timestamps
package backend

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
	"github.com/gen2brain/malgo"
)

// packetQueueSize bounds packets held between capture-loop wakes.
// At 20ms periods this is over a second of backlog.
const packetQueueSize = 64

// Malgo is the production capture backend. It owns the platform audio
// context; Close releases it after all streams are closed.
type Malgo struct {
	ctx *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[string]malgo.DeviceID // directory entry ID -> native device ID
}

// NewMalgo initializes the platform audio subsystem
func NewMalgo() (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Malgo{ctx: ctx, ids: make(map[string]malgo.DeviceID)}, nil
}

// Devices enumerates output endpoints first, then input endpoints.
// Entries whose names cannot be read are skipped, not fatal.
func (m *Malgo) Devices() ([]device.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []device.Entry

	playback, err := m.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate output devices: %w", err)
	}
	for _, info := range playback {
		if entry, ok := m.toEntry(info, device.FlowOutput); ok {
			entries = append(entries, entry)
		}
	}

	captureDevs, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate input devices: %w", err)
	}
	for _, info := range captureDevs {
		if entry, ok := m.toEntry(info, device.FlowInput); ok {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// toEntry converts a native device record, registering its native ID.
// Must hold m.mu.
func (m *Malgo) toEntry(info malgo.DeviceInfo, flow device.Flow) (device.Entry, bool) {
	name := info.Name()
	if name == "" {
		// Best effort: a device whose properties cannot be read is
		// skipped and enumeration continues.
		log.Printf("Skipping %s device with unreadable name", flow)
		return device.Entry{}, false
	}

	id := fmt.Sprintf("%s:%x", flow, info.ID)
	m.ids[id] = info.ID

	return device.Entry{
		ID:      id,
		Name:    name,
		Flow:    flow,
		Default: info.IsDefault != 0,
	}, true
}

// Open activates a capture stream on the given endpoint. Output-flow
// entries are opened in loopback mode.
func (m *Malgo) Open(entry device.Entry, bufferDuration time.Duration) (capture.Stream, error) {
	deviceType := malgo.Capture
	if entry.Flow == device.FlowOutput {
		deviceType = malgo.Loopback
	}

	config := malgo.DefaultDeviceConfig(deviceType)
	config.PeriodSizeInMilliseconds = uint32(bufferDuration.Milliseconds())
	config.Alsa.NoMMap = 1

	// Leave format, channels, and rate at zero so the device opens in
	// its native mix format; the session validates it afterwards.
	m.mu.Lock()
	if id, ok := m.ids[entry.ID]; ok && !entry.Default {
		config.Capture.DeviceID = id.Pointer()
	}
	m.mu.Unlock()

	s := &malgoStream{
		packets: make(chan capture.Packet, packetQueueSize),
		epoch:   time.Now(),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			s.deliver(pInput, frameCount)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, config, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	s.device = dev

	s.format = audio.Format{
		Encoding:   encodingFromMalgo(dev.CaptureFormat()),
		SampleRate: int(dev.SampleRate()),
		Channels:   int(dev.CaptureChannels()),
	}
	s.bufferFrames = int(dev.SampleRate()) * int(bufferDuration.Milliseconds()) / 1000

	return s, nil
}

// Close releases the platform audio context
func (m *Malgo) Close() error {
	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			log.Printf("Warning: audio context uninit error: %v", err)
		}
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}

// malgoStream adapts miniaudio's push callbacks to the pull-style
// packet interface the capture loop drains.
type malgoStream struct {
	device       *malgo.Device
	format       audio.Format
	bufferFrames int

	packets chan capture.Packet
	epoch   time.Time
	drops   uint64
	mu      sync.Mutex
}

// deliver runs on the audio callback thread; it must never block
func (s *malgoStream) deliver(input []byte, frameCount uint32) {
	data := make([]byte, len(input))
	copy(data, input)

	pkt := capture.Packet{
		Data:   data,
		Length: len(data),
		Ticks:  uint64(time.Since(s.epoch).Nanoseconds() / 100),
	}

	select {
	case s.packets <- pkt:
	default:
		s.mu.Lock()
		s.drops++
		if s.drops == 1 || s.drops%100 == 0 {
			log.Printf("Capture packet queue full, dropped %d packets", s.drops)
		}
		s.mu.Unlock()
	}
}

func (s *malgoStream) Format() audio.Format {
	return s.format
}

func (s *malgoStream) BufferFrames() int {
	return s.bufferFrames
}

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (s *malgoStream) NextPacket() (capture.Packet, bool, error) {
	select {
	case pkt := <-s.packets:
		return pkt, true, nil
	default:
		return capture.Packet{}, false, nil
	}
}

func (s *malgoStream) Close() error {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}

// encodingFromMalgo maps a native sample format to our encoding
func encodingFromMalgo(f malgo.FormatType) audio.Encoding {
	switch f {
	case malgo.FormatF32:
		return audio.EncodingFloat32
	case malgo.FormatS16:
		return audio.EncodingInt16
	default:
		return audio.EncodingUnknown
	}
}

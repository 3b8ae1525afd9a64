//go:build portaudio

// ABOUTME: PortAudio capture backend
// ABOUTME: Cross-platform microphone capture using PortAudio
package backend

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
	"github.com/gordonklaus/portaudio"
)

// PortAudio capture backend. PortAudio has no loopback mode, so only
// input devices are exposed.
type PortAudio struct {
	mu   sync.Mutex
	devs []*portaudio.DeviceInfo
}

// NewPortAudio initializes the PortAudio library
func NewPortAudio() (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudio{}, nil
}

// Devices enumerates input endpoints
func (p *PortAudio) Devices() ([]device.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	defaultInput, _ := portaudio.DefaultInputDevice()

	p.devs = p.devs[:0]
	var entries []device.Entry
	for _, d := range devs {
		if d.MaxInputChannels <= 0 {
			continue
		}
		entries = append(entries, device.Entry{
			ID:      strconv.Itoa(len(p.devs)),
			Name:    d.Name,
			Flow:    device.FlowInput,
			Default: defaultInput != nil && d == defaultInput,
		})
		p.devs = append(p.devs, d)
	}
	return entries, nil
}

// Open activates a capture stream on the given input device
func (p *PortAudio) Open(entry device.Entry, bufferDuration time.Duration) (capture.Stream, error) {
	if entry.Flow == device.FlowOutput {
		return nil, fmt.Errorf("loopback capture is not supported by the portaudio backend")
	}

	p.mu.Lock()
	idx, err := strconv.Atoi(entry.ID)
	if err != nil || idx < 0 || idx >= len(p.devs) {
		p.mu.Unlock()
		return nil, fmt.Errorf("unknown device %q", entry.ID)
	}
	dev := p.devs[idx]
	p.mu.Unlock()

	sampleRate := int(dev.DefaultSampleRate)
	channels := dev.MaxInputChannels
	if channels > 2 {
		channels = 2
	}
	bufferFrames := sampleRate * int(bufferDuration.Milliseconds()) / 1000

	s := &portAudioStream{
		format: audio.Format{
			Encoding:   audio.EncodingFloat32,
			SampleRate: sampleRate,
			Channels:   channels,
		},
		bufferFrames: bufferFrames,
		packets:      make(chan capture.Packet, packetQueueSize),
		epoch:        time.Now(),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: bufferFrames,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		s.deliver(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}
	s.stream = stream

	return s, nil
}

// Close terminates the PortAudio library
func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream       *portaudio.Stream
	format       audio.Format
	bufferFrames int

	packets chan capture.Packet
	epoch   time.Time
}

// deliver runs on the audio callback; it must never block
func (s *portAudioStream) deliver(in []float32) {
	data := audio.Float32ToBytes(in)
	pkt := capture.Packet{
		Data:   data,
		Length: len(data),
		Ticks:  uint64(time.Since(s.epoch).Nanoseconds() / 100),
	}
	select {
	case s.packets <- pkt:
	default:
	}
}

func (s *portAudioStream) Format() audio.Format {
	return s.format
}

func (s *portAudioStream) BufferFrames() int {
	return s.bufferFrames
}

func (s *portAudioStream) Start() error {
	return s.stream.Start()
}

func (s *portAudioStream) Stop() error {
	return s.stream.Stop()
}

func (s *portAudioStream) NextPacket() (capture.Packet, bool, error) {
	select {
	case pkt := <-s.packets:
		return pkt, true, nil
	default:
		return capture.Packet{}, false, nil
	}
}

func (s *portAudioStream) Close() error {
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

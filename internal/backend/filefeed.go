// ABOUTME: File-fed capture backend decoding MP3 and FLAC into float32 packets
// ABOUTME: Paces packet delivery against the wall clock to mimic a live device
package backend

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// FileFeed presents an audio file as a single capture device. Useful for
// exercising the full capture path without audio hardware.
type FileFeed struct {
	path string
}

// NewFileFeed creates a file-fed backend for the given MP3 or FLAC file
func NewFileFeed(path string) (*FileFeed, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3", ".flac":
		return &FileFeed{path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", filepath.Ext(path))
	}
}

// Devices returns the single simulated input device
func (f *FileFeed) Devices() ([]device.Entry, error) {
	name := strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
	return []device.Entry{
		{ID: "file:" + f.path, Name: name, Flow: device.FlowInput, Default: true},
	}, nil
}

// Open starts decoding the file as a paced capture stream
func (f *FileFeed) Open(entry device.Entry, bufferDuration time.Duration) (capture.Stream, error) {
	dec, err := openFileDecoder(f.path)
	if err != nil {
		return nil, err
	}

	rate := dec.sampleRate()
	channels := dec.channels()
	bufferFrames := rate * int(bufferDuration.Milliseconds()) / 1000
	if bufferFrames <= 0 {
		bufferFrames = rate / 50
	}

	log.Printf("Feeding capture from %s (%dHz, %d channels)", filepath.Base(f.path), rate, channels)

	return &fileStream{
		decoder: dec,
		reopen:  func() (fileDecoder, error) { return openFileDecoder(f.path) },
		format: audio.Format{
			Encoding:   audio.EncodingFloat32,
			SampleRate: rate,
			Channels:   channels,
		},
		bufferFrames: bufferFrames,
	}, nil
}

// Close releases nothing; each stream owns its decoder
func (f *FileFeed) Close() error {
	return nil
}

// fileDecoder yields interleaved float32 samples from a decoded file
type fileDecoder interface {
	sampleRate() int
	channels() int
	// readSamples fills dst with decoded samples, returning the count.
	// io.EOF signals the end of the file.
	readSamples(dst []float32) (int, error)
	io.Closer
}

func openFileDecoder(path string) (fileDecoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return newMP3Decoder(path)
	case ".flac":
		return newFLACDecoder(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}
}

// fileStream delivers decoded packets no faster than real time, looping
// the file on EOF.
type fileStream struct {
	decoder      fileDecoder
	reopen       func() (fileDecoder, error)
	format       audio.Format
	bufferFrames int

	started time.Time
	frames  uint64 // frames emitted so far
}

func (s *fileStream) Format() audio.Format {
	return s.format
}

func (s *fileStream) BufferFrames() int {
	return s.bufferFrames
}

func (s *fileStream) Start() error {
	s.started = time.Now()
	return nil
}

func (s *fileStream) Stop() error {
	return nil
}

// NextPacket returns the next buffer of decoded audio once the wall clock
// has caught up with it, so the file plays out at its native rate.
func (s *fileStream) NextPacket() (capture.Packet, bool, error) {
	due := uint64(time.Since(s.started).Seconds() * float64(s.format.SampleRate))
	if s.frames+uint64(s.bufferFrames) > due {
		return capture.Packet{}, false, nil
	}

	samples := make([]float32, s.bufferFrames*s.format.Channels)
	n, err := s.decoder.readSamples(samples)
	if err == io.EOF {
		// Loop the file, zero-padding the remainder of this packet.
		s.decoder.Close()
		dec, reopenErr := s.reopen()
		if reopenErr != nil {
			return capture.Packet{}, false, fmt.Errorf("failed to restart file: %w", reopenErr)
		}
		s.decoder = dec
	} else if err != nil {
		return capture.Packet{}, false, fmt.Errorf("decode error: %w", err)
	}
	for i := n; i < len(samples); i++ {
		samples[i] = 0
	}

	data := audio.Float32ToBytes(samples)
	pkt := capture.Packet{
		Data:   data,
		Length: len(data),
		Ticks:  s.frames * capture.TicksPerSecond / uint64(s.format.SampleRate),
	}
	s.frames += uint64(s.bufferFrames)
	return pkt, true, nil
}

func (s *fileStream) Close() error {
	return s.decoder.Close()
}

// mp3Decoder wraps go-mp3, which always outputs 16-bit stereo
type mp3Decoder struct {
	file *os.File
	dec  *mp3.Decoder
}

func newMP3Decoder(path string) (*mp3Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &mp3Decoder{file: f, dec: dec}, nil
}

func (d *mp3Decoder) sampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) channels() int   { return 2 }

func (d *mp3Decoder) readSamples(dst []float32) (int, error) {
	buf := make([]byte, len(dst)*2)
	n, err := d.dec.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	count := n / 2
	for i := 0; i < count; i++ {
		s := int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		dst[i] = audio.SampleFromInt16(s)
	}
	if err == io.EOF {
		return count, io.EOF
	}
	return count, nil
}

func (d *mp3Decoder) Close() error {
	return d.file.Close()
}

// flacDecoder wraps mewkiz/flac, converting whatever bit depth the file
// carries to float32
type flacDecoder struct {
	file   *os.File
	stream *flac.Stream

	// leftover holds samples decoded past the end of the caller's buffer
	leftover []float32
}

func newFLACDecoder(path string) (*flacDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	return &flacDecoder{file: f, stream: stream}, nil
}

func (d *flacDecoder) sampleRate() int { return int(d.stream.Info.SampleRate) }
func (d *flacDecoder) channels() int   { return int(d.stream.Info.NChannels) }

func (d *flacDecoder) readSamples(dst []float32) (int, error) {
	filled := 0

	if len(d.leftover) > 0 {
		filled = copy(dst, d.leftover)
		d.leftover = d.leftover[filled:]
	}

	channels := d.channels()
	scale := float32(int32(1) << (d.stream.Info.BitsPerSample - 1))

	for filled < len(dst) {
		frame, err := d.stream.ParseNext()
		if err != nil {
			if err == io.EOF && filled > 0 {
				return filled, nil
			}
			return filled, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				sample := float32(frame.Subframes[ch].Samples[i]) / scale
				if filled < len(dst) {
					dst[filled] = sample
					filled++
				} else {
					d.leftover = append(d.leftover, sample)
				}
			}
		}
	}

	return filled, nil
}

func (d *flacDecoder) Close() error {
	return d.file.Close()
}

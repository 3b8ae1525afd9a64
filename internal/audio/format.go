// ABOUTME: Audio format and stream info types
// ABOUTME: Defines sample encodings and float32 PCM helpers
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoding identifies how samples are encoded on the wire.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingFloat32          // 32-bit IEEE float, little-endian
	EncodingInt16            // 16-bit signed PCM, little-endian
)

// String returns a human-readable encoding name
func (e Encoding) String() string {
	switch e {
	case EncodingFloat32:
		return "f32"
	case EncodingInt16:
		return "s16"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// Format describes a negotiated audio stream format
type Format struct {
	Encoding   Encoding
	SampleRate int // Hz
	Channels   int
}

// BytesPerSample returns the size of one frame (all channels) in bytes
func (f Format) BytesPerSample() int {
	switch f.Encoding {
	case EncodingFloat32:
		return f.Channels * 4
	case EncodingInt16:
		return f.Channels * 2
	default:
		return 0
	}
}

// BytesPerSecond returns the byte rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerSample()
}

// Info describes a running capture session to callers
type Info struct {
	Format         Encoding
	Channels       int
	SampleRate     int // Hz
	BytesPerSample int
}

// Float32ToBytes encodes float32 samples as little-endian bytes
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// Float32FromBytes decodes little-endian float32 samples
func Float32FromBytes(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// SampleFromInt16 converts a 16-bit PCM sample to float32 in [-1, 1)
func SampleFromInt16(s int16) float32 {
	return float32(s) / 32768.0
}

// SampleToInt16 converts a float32 sample to 16-bit PCM with clipping
func SampleToInt16(s float32) int16 {
	scaled := s * 32767.0
	if scaled > 32767.0 {
		return 32767
	}
	if scaled < -32768.0 {
		return -32768
	}
	return int16(scaled)
}

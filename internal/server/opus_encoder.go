// ABOUTME: Opus audio encoder for bandwidth-efficient tap streaming
// ABOUTME: Wraps libopus and converts captured float32 PCM to Opus packets
package server

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/hraban/opus"
)

// opusRates are the only sample rates libopus accepts. Captures at other
// rates fall back to the pcm codec.
var opusRates = map[int]bool{
	8000:  true,
	12000: true,
	16000: true,
	24000: true,
	48000: true,
}

// OpusSupported reports whether a capture format can be Opus-encoded
func OpusSupported(sampleRate, channels int) bool {
	return opusRates[sampleRate] && channels >= 1 && channels <= 2
}

// OpusEncoder wraps the Opus encoder
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	pcm        []int16 // conversion scratch buffer
}

// NewOpusEncoder creates a new Opus encoder
func NewOpusEncoder(sampleRate, channels int) (*OpusEncoder, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	// 64 kbps per channel suits music
	if err := encoder.SetBitrate(64000 * channels); err != nil {
		log.Printf("Warning: Failed to set Opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// EncodeFloat32 encodes interleaved float32 samples to one Opus packet.
// The sample count must be a frame size libopus accepts (2.5 to 60ms).
func (e *OpusEncoder) EncodeFloat32(samples []float32) ([]byte, error) {
	if cap(e.pcm) < len(samples) {
		e.pcm = make([]int16, len(samples))
	}
	pcm := e.pcm[:len(samples)]
	for i, s := range samples {
		pcm[i] = audio.SampleToInt16(s)
	}
	return e.Encode(pcm)
}

// Encode encodes int16 PCM samples to one Opus packet
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	// Opus packets never exceed 4000 bytes
	output := make([]byte, 4000)

	n, err := e.encoder.Encode(pcm, output)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	return output[:n], nil
}

// Close closes the encoder
func (e *OpusEncoder) Close() error {
	// opus.Encoder doesn't have a Close method, nothing to do
	return nil
}

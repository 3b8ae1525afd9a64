// ABOUTME: Tests for Opus audio encoder
// ABOUTME: Tests encoder creation, rate gating, and float32 conversion
package server

import (
	"testing"
)

func TestNewOpusEncoder(t *testing.T) {
	encoder, err := NewOpusEncoder(48000, 2)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	if encoder == nil {
		t.Fatal("expected encoder to be created")
	}

	if encoder.sampleRate != 48000 {
		t.Errorf("expected sampleRate 48000, got %d", encoder.sampleRate)
	}

	if encoder.channels != 2 {
		t.Errorf("expected channels 2, got %d", encoder.channels)
	}
}

func TestOpusEncoderInvalidSampleRate(t *testing.T) {
	// Opus only supports 8, 12, 16, 24, 48 kHz
	_, err := NewOpusEncoder(44100, 2)
	if err == nil {
		t.Fatal("expected error for invalid sample rate 44100")
	}
}

func TestOpusSupported(t *testing.T) {
	cases := []struct {
		rate     int
		channels int
		want     bool
	}{
		{48000, 2, true},
		{48000, 1, true},
		{24000, 2, true},
		{16000, 1, true},
		{44100, 2, false}, // common CD rate, not an Opus rate
		{96000, 2, false},
		{48000, 6, false}, // surround capture falls back to pcm
	}

	for _, c := range cases {
		if got := OpusSupported(c.rate, c.channels); got != c.want {
			t.Errorf("OpusSupported(%d, %d) = %v, want %v", c.rate, c.channels, got, c.want)
		}
	}
}

func TestOpusEncodeValidFrame(t *testing.T) {
	encoder, err := NewOpusEncoder(48000, 2)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	// 10ms at 48kHz stereo = 480 samples * 2 channels = 960 int16 values
	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(i * 10)
	}

	encoded, err := encoder.Encode(pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded output")
	}

	// Encoded size should be much smaller than PCM (960 samples * 2 bytes).
	if len(encoded) >= len(pcm)*2 {
		t.Errorf("expected compression, but encoded size %d >= PCM size %d", len(encoded), len(pcm)*2)
	}
}

func TestOpusEncodeFloat32(t *testing.T) {
	encoder, err := NewOpusEncoder(48000, 2)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	// 20ms at 48kHz stereo, a quiet ramp within [-1, 1)
	samples := make([]float32, 1920)
	for i := range samples {
		samples[i] = float32(i%100) / 200.0
	}

	encoded, err := encoder.EncodeFloat32(samples)
	if err != nil {
		t.Fatalf("float32 encode failed: %v", err)
	}

	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded output")
	}
}

func TestOpusEncodeSilence(t *testing.T) {
	encoder, err := NewOpusEncoder(48000, 2)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	pcm := make([]int16, 960)

	encoded, err := encoder.Encode(pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded output even for silence")
	}
}

func TestOpusEncodeMultipleFrames(t *testing.T) {
	encoder, err := NewOpusEncoder(48000, 2)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	for frame := 0; frame < 10; frame++ {
		pcm := make([]int16, 960)
		for i := range pcm {
			pcm[i] = int16((frame * 1000) + i)
		}

		encoded, err := encoder.Encode(pcm)
		if err != nil {
			t.Fatalf("encode frame %d failed: %v", frame, err)
		}

		if len(encoded) == 0 {
			t.Fatalf("frame %d produced empty output", frame)
		}
	}
}

func TestOpusEncodeMono(t *testing.T) {
	encoder, err := NewOpusEncoder(48000, 1)
	if err != nil {
		t.Fatalf("failed to create mono encoder: %v", err)
	}

	pcm := make([]int16, 480)
	for i := range pcm {
		pcm[i] = int16(i * 20)
	}

	encoded, err := encoder.Encode(pcm)
	if err != nil {
		t.Fatalf("mono encode failed: %v", err)
	}

	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded output for mono")
	}
}

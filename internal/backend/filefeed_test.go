// ABOUTME: Tests for the file-fed capture backend
// ABOUTME: Tests extension dispatch, pacing, and the simulated device entry
package backend

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
)

func TestNewFileFeedMissingFile(t *testing.T) {
	_, err := NewFileFeed("/nonexistent/audio.mp3")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewFileFeedUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileFeed(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestFileFeedDeviceEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.mp3")
	if err := os.WriteFile(path, []byte{0xFF, 0xFB}, 0644); err != nil {
		t.Fatal(err)
	}

	feed, err := NewFileFeed(path)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	entries, err := feed.Devices()
	if err != nil {
		t.Fatalf("enumeration failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Name != "session" {
		t.Errorf("expected name without extension, got %q", entries[0].Name)
	}
	if entries[0].Flow != device.FlowInput || !entries[0].Default {
		t.Errorf("expected default input entry, got %+v", entries[0])
	}
}

// stubDecoder feeds a fixed ramp so pacing and packet contents can be
// checked without a real encoded file.
type stubDecoder struct {
	rate  int
	chans int
	next  float32
	eofAt int
	read  int
}

func (d *stubDecoder) sampleRate() int { return d.rate }
func (d *stubDecoder) channels() int   { return d.chans }

func (d *stubDecoder) readSamples(dst []float32) (int, error) {
	for i := range dst {
		if d.eofAt > 0 && d.read >= d.eofAt {
			return i, io.EOF
		}
		dst[i] = d.next
		d.next += 1
		d.read++
	}
	return len(dst), nil
}

func (d *stubDecoder) Close() error { return nil }

func testFileStream(dec fileDecoder, bufferFrames int) *fileStream {
	return &fileStream{
		decoder: dec,
		reopen: func() (fileDecoder, error) {
			return &stubDecoder{rate: dec.sampleRate(), chans: dec.channels()}, nil
		},
		format: audio.Format{
			Encoding:   audio.EncodingFloat32,
			SampleRate: dec.sampleRate(),
			Channels:   dec.channels(),
		},
		bufferFrames: bufferFrames,
	}
}

func TestFileStreamPacesAgainstWallClock(t *testing.T) {
	s := testFileStream(&stubDecoder{rate: 48000, chans: 2}, 960)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// Immediately after start no full 20ms buffer is due yet.
	_, ok, err := s.NextPacket()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no packet before its wall-clock due time")
	}
}

func TestFileStreamPacketContents(t *testing.T) {
	// 100 frames per second keeps the due-time wait short.
	s := testFileStream(&stubDecoder{rate: 100, chans: 1}, 2)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	var pkt capture.Packet
	deadline := time.Now().Add(time.Second)
	for {
		p, ok, err := s.NextPacket()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			pkt = p
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no packet became due within a second")
		}
		time.Sleep(time.Millisecond)
	}

	if pkt.Length != 8 {
		t.Fatalf("expected 2 float32 samples (8 bytes), got %d", pkt.Length)
	}
	samples := audio.Float32FromBytes(pkt.Data)
	if samples[0] != 0 || samples[1] != 1 {
		t.Errorf("expected ramp samples [0 1], got %v", samples)
	}
	if pkt.Ticks != 0 {
		t.Errorf("expected first packet at tick 0, got %d", pkt.Ticks)
	}
	if pkt.Time() != 0 {
		t.Errorf("expected first packet at time 0, got %v", pkt.Time())
	}
}

func TestFileStreamTickSpacing(t *testing.T) {
	s := testFileStream(&stubDecoder{rate: 100, chans: 1}, 10)
	s.started = time.Now().Add(-time.Second) // make several packets due at once

	var ticks []uint64
	for i := 0; i < 3; i++ {
		pkt, ok, err := s.NextPacket()
		if err != nil || !ok {
			t.Fatalf("packet %d: ok=%v err=%v", i, ok, err)
		}
		ticks = append(ticks, pkt.Ticks)
	}

	// 10 frames at 100Hz is 0.1s per packet.
	want := uint64(capture.TicksPerSecond / 10)
	if ticks[1]-ticks[0] != want || ticks[2]-ticks[1] != want {
		t.Errorf("expected tick spacing %d, got %v", want, ticks)
	}
}

func TestFileStreamZeroPadsAtEOF(t *testing.T) {
	s := testFileStream(&stubDecoder{rate: 100, chans: 1, eofAt: 3}, 5)
	s.started = time.Now().Add(-time.Second)

	pkt, ok, err := s.NextPacket()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	samples := audio.Float32FromBytes(pkt.Data)
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(samples))
	}
	for i := 3; i < 5; i++ {
		if samples[i] != 0 {
			t.Errorf("sample %d: expected zero padding, got %v", i, samples[i])
		}
	}
}

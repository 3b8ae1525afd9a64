// ABOUTME: Tests for the tap server's chunk framing and fan-out
// ABOUTME: Tests binary framing, codec selection, and slow-client behavior
package server

import (
	"encoding/binary"
	"testing"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
)

type fakeSource struct {
	info audio.Info
	data []byte
	ts   float64
}

func (f *fakeSource) GetInfo() audio.Info { return f.info }
func (f *fakeSource) Device() device.Entry {
	return device.Entry{ID: "spk", Name: "Speakers", Flow: device.FlowOutput, Default: true}
}
func (f *fakeSource) Loopback() bool  { return true }
func (f *fakeSource) Buffered() int   { return len(f.data) }
func (f *fakeSource) Dropped() uint64 { return 0 }
func (f *fakeSource) Packets() uint64 { return 0 }

func (f *fakeSource) Read(dst []byte) (int, float64) {
	n := copy(dst, f.data)
	f.data = f.data[n:]
	ts := f.ts
	f.ts += float64(n) / float64(f.info.SampleRate*f.info.BytesPerSample)
	return n, ts
}

func TestCreateAudioChunk(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	chunk := CreateAudioChunk(25_000_000, payload)

	if len(chunk) != 1+8+4 {
		t.Fatalf("expected 13-byte chunk, got %d", len(chunk))
	}
	if chunk[0] != AudioChunkMessageType {
		t.Errorf("expected message type %d, got %d", AudioChunkMessageType, chunk[0])
	}
	if ts := binary.BigEndian.Uint64(chunk[1:9]); ts != 25_000_000 {
		t.Errorf("expected timestamp 25000000, got %d", ts)
	}
	if chunk[9] != 1 || chunk[12] != 4 {
		t.Errorf("payload mangled: %v", chunk[9:])
	}
}

func TestBroadcastChunkPCM(t *testing.T) {
	s := New(Config{Name: "test", Port: 0}, &fakeSource{})
	s.codec = "pcm_f32le"

	client := &Client{ID: "c1", Name: "c1", sendChan: make(chan interface{}, 1)}
	s.clients[client.ID] = client

	payload := audio.Float32ToBytes([]float32{0.5, -0.5})
	s.broadcastChunk(payload, 2.5)

	got := (<-client.sendChan).([]byte)
	wantTicks := uint64(2.5 * capture.TicksPerSecond)
	if ts := binary.BigEndian.Uint64(got[1:9]); ts != wantTicks {
		t.Errorf("expected tick timestamp %d, got %d", wantTicks, ts)
	}
	if len(got) != 9+len(payload) {
		t.Errorf("expected raw pcm payload of %d bytes, got %d", len(payload), len(got)-9)
	}
}

func TestBroadcastChunkDropsForSlowClient(t *testing.T) {
	s := New(Config{Name: "test", Port: 0}, &fakeSource{})
	s.codec = "pcm_f32le"

	client := &Client{ID: "c1", Name: "c1", sendChan: make(chan interface{})}
	s.clients[client.ID] = client

	// Unbuffered channel with no reader: the send must not block.
	done := make(chan struct{})
	go func() {
		s.broadcastChunk([]byte{0, 0, 0, 0}, 0)
		close(done)
	}()
	<-done
}

func TestClientCount(t *testing.T) {
	s := New(Config{Name: "test", Port: 0}, &fakeSource{})
	if s.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", s.ClientCount())
	}

	s.clients["a"] = &Client{ID: "a"}
	s.clients["b"] = &Client{ID: "b"}
	if s.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", s.ClientCount())
	}
}

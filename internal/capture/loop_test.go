// ABOUTME: Tests for the periodic capture loop
// ABOUTME: Tests packet draining, cooperative stop, and fatal errors
package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
)

// scriptedStream is an in-memory Stream fed by tests
type scriptedStream struct {
	mu           sync.Mutex
	queue        []Packet
	err          error
	format       audio.Format
	bufferFrames int
	started      bool
	stopped      bool
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{
		format:       audio.Format{Encoding: audio.EncodingFloat32, SampleRate: 10, Channels: 1},
		bufferFrames: 4,
	}
}

func (s *scriptedStream) push(pkt Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, pkt)
}

func (s *scriptedStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *scriptedStream) Format() audio.Format { return s.format }
func (s *scriptedStream) BufferFrames() int    { return s.bufferFrames }

func (s *scriptedStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *scriptedStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *scriptedStream) NextPacket() (Packet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Packet{}, false, s.err
	}
	if len(s.queue) == 0 {
		return Packet{}, false, nil
	}
	pkt := s.queue[0]
	s.queue = s.queue[1:]
	return pkt, true, nil
}

func (s *scriptedStream) Close() error { return nil }

// ringForStream sizes a ring for the scripted stream format (float32 mono at 10Hz)
func ringForStream(s *scriptedStream) *Ring {
	f := s.Format()
	return NewRing(f.SampleRate, f.BytesPerSample())
}

func ticks(seconds float64) uint64 {
	return uint64(seconds * TicksPerSecond)
}

func TestLoopDrainsAllPendingPackets(t *testing.T) {
	stream := newScriptedStream()
	ring := ringForStream(stream)

	// Several packets queue up before the first wake.
	stream.push(Packet{Data: []byte{1, 2, 3, 4}, Length: 4, Ticks: ticks(0.0)})
	stream.push(Packet{Data: []byte{5, 6, 7, 8}, Length: 4, Ticks: ticks(0.1)})
	stream.push(Packet{Data: []byte{9, 10, 11, 12}, Length: 4, Ticks: ticks(0.2)})

	loop := NewLoop(stream, ring, time.Millisecond)
	go loop.Run()
	defer loop.Stop()

	deadline := time.Now().Add(time.Second)
	for ring.Buffered() < 12 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if ring.Buffered() != 12 {
		t.Fatalf("expected 12 bytes drained, got %d", ring.Buffered())
	}
	if loop.Packets() != 3 {
		t.Errorf("expected 3 packets, got %d", loop.Packets())
	}

	dst := make([]byte, 12)
	n, ts := ring.Read(dst)
	if n != 12 {
		t.Errorf("expected 12 bytes, got %d", n)
	}
	if ts != 0.0 {
		t.Errorf("expected timestamp 0.0, got %v", ts)
	}
}

func TestLoopTickTimestampConversion(t *testing.T) {
	stream := newScriptedStream()
	ring := ringForStream(stream)

	stream.push(Packet{Data: []byte{1, 2, 3, 4}, Length: 4, Ticks: 25_000_000}) // 2.5s

	loop := NewLoop(stream, ring, time.Millisecond)
	go loop.Run()
	defer loop.Stop()

	deadline := time.Now().Add(time.Second)
	for ring.Buffered() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	dst := make([]byte, 4)
	_, ts := ring.Read(dst)
	if ts != 2.5 {
		t.Errorf("expected timestamp 2.5, got %v", ts)
	}
}

func TestLoopStops(t *testing.T) {
	stream := newScriptedStream()
	ring := ringForStream(stream)

	loop := NewLoop(stream, ring, time.Millisecond)
	go loop.Run()

	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop within 1s")
	}

	// Stop is idempotent.
	loop.Stop()
}

func TestLoopFatalStreamError(t *testing.T) {
	stream := newScriptedStream()
	ring := ringForStream(stream)

	loop := NewLoop(stream, ring, time.Millisecond)
	go loop.Run()

	stream.fail(errors.New("device invalidated"))

	select {
	case err := <-loop.Err():
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected fatal error within 1s")
	}
}

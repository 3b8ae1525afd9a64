// ABOUTME: Time-anchored ring buffer for captured audio
// ABOUTME: Single producer, single consumer, oldest-drop overflow, time seek
package capture

import (
	"math"
	"sync"
)

// Ring is a fixed-capacity circular byte store with a time anchor.
//
// Cursors grow monotonically; the physical position of a cursor is its
// value mod capacity. The anchor pairs the write cursor at the most
// recent append with that packet's timestamp, so the absolute time of
// any retained byte follows by linear extrapolation at the byte rate.
//
// Exactly one producer appends and one consumer reads. Consumer calls
// may come from any goroutine as long as they are not concurrent with
// each other.
type Ring struct {
	mu  sync.Mutex
	buf []byte

	capacity uint64
	read     uint64 // next unread byte
	write    uint64 // next free byte

	anchorOff  uint64  // write cursor at the most recent append
	anchorTime float64 // seconds, from the device clock

	sampleRate     int
	bytesPerSample int
	dropped        uint64 // bytes lost to overflow
}

// NewRing allocates a ring holding one second of audio at the given rate
func NewRing(sampleRate, bytesPerSample int) *Ring {
	capacity := sampleRate * bytesPerSample
	return &Ring{
		buf:            make([]byte, capacity),
		capacity:       uint64(capacity),
		sampleRate:     sampleRate,
		bytesPerSample: bytesPerSample,
	}
}

// Append stores n bytes with the given device timestamp. When free space
// is short the oldest unread bytes are dropped first; the consumer simply
// sees less history on its next Read. Silent packets are written as
// zeroes without touching payload.
func (r *Ring) Append(payload []byte, n int, timestamp float64, silent bool) {
	if n <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	avail := r.capacity - (r.write - r.read)
	if uint64(n) > avail {
		r.read += uint64(n) - avail
		r.dropped += uint64(n) - avail
	}

	r.anchorOff = r.write
	r.anchorTime = timestamp

	// Oversized packets keep only their newest capacity bytes; the
	// cursors still advance by the full length so the overflow
	// accounting stays exact.
	skip := 0
	if uint64(n) > r.capacity {
		skip = n - int(r.capacity)
	}

	pos := (r.write + uint64(skip)) % r.capacity
	chunk1 := min(n-skip, int(r.capacity-pos))
	if silent {
		zero(r.buf[pos : pos+uint64(chunk1)])
		zero(r.buf[:n-skip-chunk1])
	} else {
		copy(r.buf[pos:], payload[skip:skip+chunk1])
		copy(r.buf, payload[skip+chunk1:n])
	}

	r.write += uint64(n)

	// Rebase all counters once the read cursor passes capacity so the
	// monotonic offsets stay bounded.
	if r.read > r.capacity {
		r.write -= r.capacity
		r.read -= r.capacity
		r.anchorOff -= r.capacity
	}
}

// Read copies up to len(dst) buffered bytes into dst and returns the
// count together with the absolute time of the first byte returned.
func (r *Ring) Read(dst []byte) (int, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := r.anchorTime + float64(int64(r.read-r.anchorOff))/float64(r.bytesPerSecond())

	n := min(len(dst), int(r.write-r.read))
	pos := r.read % r.capacity
	chunk1 := min(n, int(r.capacity-pos))
	copy(dst, r.buf[pos:pos+uint64(chunk1)])
	copy(dst[chunk1:], r.buf[:n-chunk1])
	r.read += uint64(n)

	return n, timestamp
}

// JumpToTime moves the read cursor to the buffered byte closest to the
// requested absolute time. Times outside the retained window pin to the
// oldest or newest available byte.
func (r *Ring) JumpToTime(t float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deltaSamples := int64(math.Round((t - r.anchorTime) * float64(r.sampleRate)))
	target := int64(r.anchorOff) + deltaSamples*int64(r.bytesPerSample)

	if target < int64(r.read) {
		target = int64(r.read)
	}
	if target > int64(r.write) {
		target = int64(r.write)
	}
	r.read = uint64(target)
}

// Flush discards all buffered, unread data
func (r *Ring) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = r.write
}

// Buffered returns the number of unread bytes
func (r *Ring) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.write - r.read)
}

// Capacity returns the ring size in bytes
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// Dropped returns the total bytes lost to overflow
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Ring) bytesPerSecond() int {
	return r.sampleRate * r.bytesPerSample
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

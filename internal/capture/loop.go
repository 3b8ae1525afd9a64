// ABOUTME: Periodic capture loop draining hardware packets into the ring
// ABOUTME: Wakes at half the device buffer period, stops cooperatively
package capture

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Loop drains pending packets from a capture stream into a ring buffer.
// It is purely producer-side: it never waits on the consumer, and a full
// ring resolves by dropping the oldest bytes inside the ring itself.
type Loop struct {
	stream Stream
	ring   *Ring

	interval time.Duration

	packets uint64 // total packets appended, atomic

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	errChan  chan error
}

// NewLoop creates a capture loop waking at the given interval
func NewLoop(stream Stream, ring *Ring, interval time.Duration) *Loop {
	return &Loop{
		stream:   stream,
		ring:     ring,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		errChan:  make(chan error, 1),
	}
}

// Run executes the loop until Stop is called or the stream fails.
// A stream failure is fatal for the session: it is published on Err
// and the loop exits without retrying.
func (l *Loop) Run() {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			if err := l.drain(); err != nil {
				log.Printf("Capture loop: %v", err)
				l.errChan <- err
				return
			}
		}
	}
}

// drain appends every pending packet; packets can queue up between wakes
func (l *Loop) drain() error {
	for {
		pkt, ok, err := l.stream.NextPacket()
		if err != nil {
			return fmt.Errorf("failed to get capture packet: %w", err)
		}
		if !ok {
			return nil
		}

		l.ring.Append(pkt.Data, pkt.Length, pkt.Time(), pkt.Silent)
		atomic.AddUint64(&l.packets, 1)
	}
}

// Stop signals the loop to exit and waits for it to finish
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	<-l.done
}

// Err delivers the fatal stream error, if the loop died on one
func (l *Loop) Err() <-chan error {
	return l.errChan
}

// Packets returns the total number of packets appended so far
func (l *Loop) Packets() uint64 {
	return atomic.LoadUint64(&l.packets)
}

// ABOUTME: Silent render stream keeping a shared audio engine alive
// ABOUTME: Used only for loopback sessions so packet delivery never suspends
package capture

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/ebitengine/oto/v3"
)

// KeepAliveSink plays silence on the capture target's engine. Shared-mode
// engines suspend their processing graph when nothing renders, and a
// suspended graph delivers no loopback packets; an always-silent player
// keeps the graph and its clock running for the lifetime of the session.
type KeepAliveSink struct {
	otoCtx *oto.Context
	player *oto.Player
}

// NewKeepAliveSink opens a silent output stream matching the given format
// and starts playback immediately.
func NewKeepAliveSink(format audio.Format) (*KeepAliveSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create keep-alive context: %w", err)
	}

	<-readyChan

	player := ctx.NewPlayer(silenceReader{})
	player.Play()

	log.Printf("Keep-alive sink started: %dHz, %d channels", format.SampleRate, format.Channels)

	return &KeepAliveSink{otoCtx: ctx, player: player}, nil
}

// Close stops playback and releases the sink
func (k *KeepAliveSink) Close() error {
	if k.player != nil {
		if err := k.player.Close(); err != nil {
			log.Printf("Warning: keep-alive player close error: %v", err)
		}
		k.player = nil
	}
	if k.otoCtx != nil {
		k.otoCtx.Suspend()
		k.otoCtx = nil
	}
	return nil
}

// silenceReader yields zero samples forever
type silenceReader struct{}

func (silenceReader) Read(p []byte) (int, error) {
	zero(p)
	return len(p), nil
}

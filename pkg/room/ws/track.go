package ws

import (
	"errors"
	"fmt"
	"sync"

	"layeh.com/gopus"

	"github.com/rdxlabs/duplytalk/pkg/audio"
)

// maxOpusPacket is the encode buffer size handed to gopus. Voice packets at
// 20 ms are far smaller; this bound is generous.
const maxOpusPacket = 4000

var errTrackUnpublished = errors.New("ws: track is unpublished")

// track accumulates PCM into 20 ms blocks, Opus-encodes each block, and ships
// it as a binary media frame. A track is written from a single goroutine (the
// playback or capture pump), matching the pipeline's one-track-at-a-time
// ordering; detach may race with Write, hence the mutex.
type track struct {
	sess *session
	id   uint16
	name string

	mu       sync.Mutex
	detached bool
	enc      *gopus.Encoder
	rate     int
	frameLen int     // samples per 20 ms block
	pending  []int16 // accumulated samples below one block
}

// Name implements [room.Track].
func (t *track) Name() string { return t.name }

// Write implements [room.Track]. The first frame fixes the track's sample
// rate; it must be one of the Opus-supported rates (8, 12, 16, 24, 48 kHz).
func (t *track) Write(frame audio.AudioFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached {
		return errTrackUnpublished
	}

	if t.enc == nil {
		enc, err := gopus.NewEncoder(frame.SampleRate, 1, gopus.Voip)
		if err != nil {
			return fmt.Errorf("ws: create opus encoder (%d Hz): %w", frame.SampleRate, err)
		}
		t.enc = enc
		t.rate = frame.SampleRate
		t.frameLen = frame.SampleRate * frameMs / 1000
	}
	if frame.SampleRate != t.rate {
		return fmt.Errorf("ws: track %q sample rate changed from %d to %d",
			t.name, t.rate, frame.SampleRate)
	}

	for _, s := range frame.Samples {
		t.pending = append(t.pending, audio.Float32ToInt16(s))
	}

	for len(t.pending) >= t.frameLen {
		block := t.pending[:t.frameLen]
		packet, err := t.enc.Encode(block, t.frameLen, maxOpusPacket)
		if err != nil {
			return fmt.Errorf("ws: opus encode: %w", err)
		}
		t.pending = t.pending[t.frameLen:]
		if err := t.sess.writeMedia(t.id, packet); err != nil {
			return err
		}
	}
	return nil
}

// detach marks the track unpublished. Samples below one block are dropped —
// less than 20 ms of tail audio is inaudible and not worth a padded packet.
func (t *track) detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
	t.pending = nil
}

package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/room"
)

// relay tees capture frames to the published microphone track while relaying
// them unchanged to the segmenter. It implements [audio.Source] so the
// segmenter drives it like any other capture source; stopping the relay stops
// the underlying device.
type relay struct {
	upstream audio.Source
	frames   chan audio.AudioFrame
	done     chan struct{}
	stop     sync.Once
}

var _ audio.Source = (*relay)(nil)

func newRelay(upstream audio.Source, mic room.Track, log *slog.Logger) *relay {
	r := &relay{
		upstream: upstream,
		frames:   make(chan audio.AudioFrame, 8),
		done:     make(chan struct{}),
	}
	go r.run(mic, log)
	return r
}

func (r *relay) run(mic room.Track, log *slog.Logger) {
	defer close(r.frames)
	warned := false
	for frame := range r.upstream.Frames() {
		if mic != nil {
			if err := mic.Write(frame); err != nil && !warned {
				// One warning per session; the track stays broken until the
				// session is torn down anyway.
				log.Warn("orchestrator: microphone track write", "err", err)
				warned = true
			}
		}
		select {
		case r.frames <- frame:
		case <-r.done:
			// Nobody is consuming anymore; drop the remainder so this
			// goroutine cannot park on a full buffer forever.
			return
		}
	}
}

// Frames implements [audio.Source].
func (r *relay) Frames() <-chan audio.AudioFrame { return r.frames }

// Stop implements [audio.Source]. Stops the underlying device and releases
// the forwarding goroutine even when no consumer ever drained Frames.
func (r *relay) Stop() {
	r.stop.Do(func() {
		r.upstream.Stop()
		close(r.done)
	})
}

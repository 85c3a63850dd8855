package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

// Playback is the playable handle for one decoded synthesized-audio chunk.
//
// Frames are delivered paced at the audio clock rate so that downstream
// consumers (local output, a published room track) observe real-time playback.
// The handle is single-use: once Done is closed the playback is finished and
// the underlying resources are released.
type Playback interface {
	// Frames returns the decoded PCM frames. The channel is closed when the
	// chunk has been fully played or the playback was stopped.
	Frames() <-chan AudioFrame

	// Done is closed when playback has ended, for callers that drain Frames
	// elsewhere and only need the completion signal.
	Done() <-chan struct{}

	// Stop cancels playback early. Frames and Done close promptly. Stop is
	// idempotent.
	Stop()
}

// Decoder turns synthesized audio bytes into a [Playback]. Implementations
// delegate to whatever the platform can decode — the TTS service chooses the
// encoding, so callers must not assume one beyond "decodable by the decoder
// they configured".
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Playback, error)
}

// Sink consumes playback frames for local output (speakers, a pipe into an
// external player). Write blocks until the frame is accepted.
type Sink interface {
	Write(frame AudioFrame) error
}

// ─── PCM decoder ──────────────────────────────────────────────────────────────

// ErrEmptyAudio is returned by decoders when the byte payload carries no samples.
var ErrEmptyAudio = errors.New("audio: empty audio payload")

// PCMDecoder decodes raw little-endian 16-bit mono PCM (the pcm_* output
// formats of the TTS backends) into a paced [Playback]. A WAV container is
// also accepted: the 44-byte header is parsed and stripped.
type PCMDecoder struct {
	// SampleRate of the incoming PCM when no container header is present.
	SampleRate int

	// FrameSize is the number of samples per emitted frame. Zero means 20 ms
	// worth of samples at SampleRate.
	FrameSize int
}

// Decode splits data into frames and returns a Playback that emits them in
// real time. The supplied ctx bounds the whole playback; cancelling it is
// equivalent to calling Stop.
func (d *PCMDecoder) Decode(ctx context.Context, data []byte) (Playback, error) {
	rate := d.SampleRate
	var samples []float32
	if u, err := DecodeWAV(data); err == nil {
		samples = u.Samples
		rate = u.SampleRate
	} else if errors.Is(err, ErrUnsupportedWAV) {
		return nil, err
	} else {
		samples = Int16sToFloat32(data)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	if rate <= 0 {
		return nil, errors.New("audio: PCMDecoder requires a positive sample rate")
	}

	frameSize := d.FrameSize
	if frameSize <= 0 {
		frameSize = rate * 20 / 1000
	}

	p := newPlayback()
	go p.run(ctx, samples, rate, frameSize)
	return p, nil
}

// pacedPlayback emits decoded frames on a real-time tick.
type pacedPlayback struct {
	frames chan AudioFrame
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

func newPlayback() *pacedPlayback {
	return &pacedPlayback{
		frames: make(chan AudioFrame),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func (p *pacedPlayback) Frames() <-chan AudioFrame { return p.frames }
func (p *pacedPlayback) Done() <-chan struct{}     { return p.done }
func (p *pacedPlayback) Stop()                     { p.once.Do(func() { close(p.stop) }) }

func (p *pacedPlayback) run(ctx context.Context, samples []float32, rate, frameSize int) {
	defer close(p.done)
	defer close(p.frames)

	interval := time.Duration(frameSize) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for off := 0; off < len(samples); off += frameSize {
		end := min(off+frameSize, len(samples))
		frame := AudioFrame{Samples: samples[off:end], SampleRate: rate}
		select {
		case p.frames <- frame:
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
		select {
		case <-ticker.C:
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ─── Sinks ────────────────────────────────────────────────────────────────────

// WriterSink writes frames as little-endian int16 PCM to an [io.Writer], e.g.
// a pipe into `aplay -f S16_LE -r 16000`. Not safe for concurrent use.
type WriterSink struct {
	W io.Writer
}

// Write serialises one frame to the underlying writer.
func (s *WriterSink) Write(frame AudioFrame) error {
	buf := make([]byte, len(frame.Samples)*2)
	for i, v := range frame.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(Float32ToInt16(v)))
	}
	_, err := s.W.Write(buf)
	return err
}

// DiscardSink drops every frame. Useful when the room track is the only
// consumer that matters.
type DiscardSink struct{}

// Write implements [Sink].
func (DiscardSink) Write(AudioFrame) error { return nil }

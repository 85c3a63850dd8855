package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// Source produces capture frames for the segmenter. The microphone device is a
// scoped resource: Stop must release it on every exit path.
type Source interface {
	// Frames returns the capture channel. It is closed when the source is
	// stopped or the underlying device reaches end of stream.
	Frames() <-chan AudioFrame

	// Stop releases the capture device and closes the frame channel. Safe to
	// call more than once.
	Stop()
}

// ReaderSource reads little-endian float32 mono PCM from an [io.Reader] and
// emits fixed-size frames. It adapts any external capture process (arecord,
// sox, a recorded file) into a pipeline [Source].
type ReaderSource struct {
	r      io.Reader
	frames chan AudioFrame
	stop   chan struct{}
	once   sync.Once
}

// NewReaderSource starts reading frames of frameSize samples at sampleRate
// from r. A short trailing read is emitted as a final partial frame. When r is
// an [io.Closer] it is closed on Stop, which unblocks a read stalled on a
// quiet pipe.
func NewReaderSource(r io.Reader, sampleRate, frameSize int) *ReaderSource {
	s := &ReaderSource{
		r:      r,
		frames: make(chan AudioFrame, 8),
		stop:   make(chan struct{}),
	}
	go s.run(sampleRate, frameSize)
	return s
}

// Frames implements [Source].
func (s *ReaderSource) Frames() <-chan AudioFrame { return s.frames }

// Stop implements [Source].
func (s *ReaderSource) Stop() {
	s.once.Do(func() {
		close(s.stop)
		if c, ok := s.r.(io.Closer); ok {
			c.Close()
		}
	})
}

func (s *ReaderSource) run(sampleRate, frameSize int) {
	defer close(s.frames)
	buf := make([]byte, frameSize*4)
	for {
		n, err := io.ReadFull(s.r, buf)
		if n >= 4 {
			samples := make([]float32, n/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
			}
			select {
			case s.frames <- AudioFrame{Samples: samples, SampleRate: sampleRate}:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-s.stop:
			return
		default:
		}
	}
}

// SliceSource replays pre-built frames. It exists for tests and offline runs.
type SliceSource struct {
	frames chan AudioFrame
	stop   chan struct{}
	once   sync.Once
}

// NewSliceSource creates a source that emits the given frames in order and
// then closes its channel.
func NewSliceSource(frames []AudioFrame) *SliceSource {
	s := &SliceSource{
		frames: make(chan AudioFrame),
		stop:   make(chan struct{}),
	}
	go func() {
		defer close(s.frames)
		for _, f := range frames {
			select {
			case s.frames <- f:
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Frames implements [Source].
func (s *SliceSource) Frames() <-chan AudioFrame { return s.frames }

// Stop implements [Source].
func (s *SliceSource) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Package energy provides a pure-Go [vad.Engine] based on frame RMS energy.
//
// The probability model is deliberately simple: the frame's root-mean-square
// level is mapped through a saturating curve centred on a configurable pivot,
// with light exponential smoothing so single noisy frames do not flip the
// segmenter's state. It needs no model files and no cgo, which makes it the
// default backend for the capture pipeline.
package energy

import (
	"errors"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/provider/vad"
)

const (
	// defaultPivot is the RMS level at which the raw speech probability is 0.5.
	defaultPivot = 0.02

	// defaultSmoothing is the exponential smoothing factor applied to the raw
	// probability (0 = none, values near 1 react slowly).
	defaultSmoothing = 0.3
)

// Option configures an [Engine].
type Option func(*Engine)

// WithPivot sets the RMS level mapped to probability 0.5. Default 0.02.
func WithPivot(pivot float64) Option {
	return func(e *Engine) { e.pivot = pivot }
}

// WithSmoothing sets the exponential smoothing factor in [0, 1). Default 0.3.
func WithSmoothing(alpha float64) Option {
	return func(e *Engine) { e.smoothing = alpha }
}

// Engine implements [vad.Engine] with RMS-energy scoring.
// Engine is safe for concurrent use; each session carries its own state.
type Engine struct {
	pivot     float64
	smoothing float64
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates an energy Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{pivot: defaultPivot, smoothing: defaultSmoothing}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("energy: sample rate must be positive")
	}
	return &session{pivot: e.pivot, smoothing: e.smoothing, rate: cfg.SampleRate}, nil
}

// session scores frames for one stream. Not safe for concurrent use, matching
// the [vad.SessionHandle] contract.
type session struct {
	pivot     float64
	smoothing float64
	rate      int

	mu       sync.Mutex
	smoothed float64
	primed   bool
	closed   bool
}

var errClosed = errors.New("energy: session is closed")

// Probability implements [vad.SessionHandle].
func (s *session) Probability(frame audio.AudioFrame) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	if len(frame.Samples) == 0 {
		return 0, errors.New("energy: empty frame")
	}

	rms := audio.RMS(frame.Samples)
	raw := (rms * rms) / (rms*rms + s.pivot*s.pivot)

	if !s.primed {
		s.smoothed = raw
		s.primed = true
	} else {
		s.smoothed = s.smoothing*s.smoothed + (1-s.smoothing)*raw
	}
	return s.smoothed, nil
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoothed = 0
	s.primed = false
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Package segment turns a stream of capture frames into discrete utterances.
//
// The Segmenter wraps a probabilistic speech detector ([vad.Engine]) with
// explicit start/end thresholds and a redemption window: an utterance begins
// when the speech probability crosses the positive threshold and ends only
// after a configured number of consecutive low-probability frames, so brief
// mid-sentence pauses do not cut a turn in half.
//
// Exactly one (start, end) callback pair fires per speech turn. Stop
// guarantees that no callback fires after it returns — an in-flight turn is
// cancelled, not flushed.
package segment

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/provider/vad"
)

const (
	// DefaultPositiveThreshold is the speech probability that begins an utterance.
	DefaultPositiveThreshold = 0.85

	// DefaultNegativeThreshold is the probability below which a frame counts
	// toward ending the active utterance.
	DefaultNegativeThreshold = 0.70

	// DefaultRedemptionFrames is the count of consecutive below-threshold
	// frames required before the utterance end is final.
	DefaultRedemptionFrames = 12
)

// Config holds the segmentation thresholds.
type Config struct {
	// SampleRate of the capture frames in Hz.
	SampleRate int

	// PositiveThreshold begins an utterance (default 0.85).
	PositiveThreshold float64

	// NegativeThreshold is considered "maybe done" (default 0.70). Must be
	// ≤ PositiveThreshold.
	NegativeThreshold float64

	// RedemptionFrames debounces the end decision (default 12).
	RedemptionFrames int
}

// withDefaults fills zero values with the package defaults.
func (c Config) withDefaults() Config {
	if c.PositiveThreshold == 0 {
		c.PositiveThreshold = DefaultPositiveThreshold
	}
	if c.NegativeThreshold == 0 {
		c.NegativeThreshold = DefaultNegativeThreshold
	}
	if c.RedemptionFrames == 0 {
		c.RedemptionFrames = DefaultRedemptionFrames
	}
	return c
}

// Callbacks are the utterance boundary notifications. Either may be nil.
// Callbacks are invoked from the segmenter's internal goroutine and must not
// block for long — the capture loop is paused while they run.
type Callbacks struct {
	// OnSpeechStart fires once when an utterance begins.
	OnSpeechStart func()

	// OnSpeechEnd fires once per turn with the completed utterance.
	OnSpeechEnd func(u audio.Utterance)
}

// Segmenter drives a VAD session over a frame source. A Segmenter is single
// use: Start once, Stop once; create a new one per connection session.
type Segmenter struct {
	engine vad.Engine
	cfg    Config
	cb     Callbacks

	mu      sync.Mutex
	started bool
	stopped bool
	source  audio.Source
	session vad.SessionHandle
	done    chan struct{}
}

// New creates a Segmenter over the given detector engine.
func New(engine vad.Engine, cfg Config, cb Callbacks) *Segmenter {
	return &Segmenter{engine: engine, cfg: cfg.withDefaults(), cb: cb}
}

// Start opens a VAD session and begins consuming frames from source. It
// returns an error if the segmenter was already started or the session cannot
// be created.
func (s *Segmenter) Start(source audio.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("segment: already started")
	}

	session, err := s.engine.NewSession(vad.Config{SampleRate: s.cfg.SampleRate})
	if err != nil {
		return fmt.Errorf("segment: open VAD session: %w", err)
	}

	s.started = true
	s.stopped = false
	s.source = source
	s.session = session
	s.done = make(chan struct{})
	go s.run(source, session)
	return nil
}

// Stop cancels segmentation. After Stop returns, no callback will fire — an
// utterance still being buffered is discarded, not flushed. Stop releases the
// frame source and the VAD session, and is safe to call more than once.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	source, session, done := s.source, s.session, s.done
	s.mu.Unlock()

	source.Stop()
	<-done
	if err := session.Close(); err != nil {
		slog.Warn("segment: close VAD session", "err", err)
	}
}

// run is the capture loop. It owns all segmentation state and exits when the
// frame channel closes or Stop is called.
func (s *Segmenter) run(source audio.Source, session vad.SessionHandle) {
	defer close(s.done)

	var (
		speaking   bool
		redemption int
		buffer     []float32
		rate       int
	)

	for frame := range source.Frames() {
		p, err := session.Probability(frame)
		if err != nil {
			slog.Warn("segment: VAD probability", "err", err)
			continue
		}

		if !speaking {
			if p < s.cfg.PositiveThreshold {
				continue
			}
			speaking = true
			redemption = 0
			buffer = append(buffer[:0], frame.Samples...)
			rate = frame.SampleRate
			s.fire(func() {
				if s.cb.OnSpeechStart != nil {
					s.cb.OnSpeechStart()
				}
			})
			continue
		}

		buffer = append(buffer, frame.Samples...)
		if p < s.cfg.NegativeThreshold {
			redemption++
		} else {
			redemption = 0
		}
		if redemption < s.cfg.RedemptionFrames {
			continue
		}

		u := audio.Utterance{Samples: append([]float32(nil), buffer...), SampleRate: rate}
		speaking = false
		redemption = 0
		buffer = buffer[:0]
		s.fire(func() {
			if s.cb.OnSpeechEnd != nil {
				s.cb.OnSpeechEnd(u)
			}
		})
	}
}

// fire invokes a callback under the stop lock so that Stop, once returned,
// strictly happens-after the last callback.
func (s *Segmenter) fire(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	f()
}

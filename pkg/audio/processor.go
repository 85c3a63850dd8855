package audio

import "math"

const (
	// DefaultEnergyThreshold is the RMS level above which a frame counts as speech.
	DefaultEnergyThreshold = 0.01

	// DefaultMaxSilenceFrames is the number of trailing silence frames tolerated
	// before an active utterance is flushed.
	DefaultMaxSilenceFrames = 10
)

// FrameProcessor is a streaming, single-pass speech/silence classifier.
//
// Each frame is classified by its root-mean-square energy. Speech frames (and
// up to MaxSilenceFrames trailing silence frames) are appended to the active
// buffer; once trailing silence exceeds the window, the buffer is flushed as
// one [Utterance]. There is no look-ahead, so the silence tail of an emitted
// utterance is exactly MaxSilenceFrames frames long.
//
// The zero value is not usable; construct with [NewFrameProcessor]. A
// FrameProcessor is not safe for concurrent use — it belongs to the single
// capture loop feeding it.
type FrameProcessor struct {
	threshold        float64
	maxSilenceFrames int

	speaking      bool
	silenceFrames int
	buffer        []float32
	sampleRate    int
}

// FrameProcessorOption configures a [FrameProcessor].
type FrameProcessorOption func(*FrameProcessor)

// WithEnergyThreshold overrides the RMS speech threshold (default 0.01).
func WithEnergyThreshold(t float64) FrameProcessorOption {
	return func(p *FrameProcessor) { p.threshold = t }
}

// WithMaxSilenceFrames overrides the trailing-silence window (default 10).
func WithMaxSilenceFrames(n int) FrameProcessorOption {
	return func(p *FrameProcessor) { p.maxSilenceFrames = n }
}

// NewFrameProcessor creates a FrameProcessor with the given options applied.
func NewFrameProcessor(opts ...FrameProcessorOption) *FrameProcessor {
	p := &FrameProcessor{
		threshold:        DefaultEnergyThreshold,
		maxSilenceFrames: DefaultMaxSilenceFrames,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process classifies one frame and returns a completed [Utterance] when the
// trailing-silence window is exceeded. ok is false on every other frame.
//
// Silence frames inside the window are buffered too: a flushed utterance
// carries its MaxSilenceFrames-long silence tail, matching the exact frame
// accounting of the capture device (speech frames plus buffered silence).
func (p *FrameProcessor) Process(frame AudioFrame) (u Utterance, ok bool) {
	if len(frame.Samples) == 0 {
		return Utterance{}, false
	}

	if RMS(frame.Samples) > p.threshold {
		p.speaking = true
		p.silenceFrames = 0
		p.append(frame)
		return Utterance{}, false
	}

	if !p.speaking {
		return Utterance{}, false
	}

	p.silenceFrames++
	if p.silenceFrames <= p.maxSilenceFrames {
		p.append(frame)
		return Utterance{}, false
	}

	// Trailing silence exceeded the window: flush the active buffer.
	u = Utterance{Samples: p.buffer, SampleRate: p.sampleRate}
	p.speaking = false
	p.silenceFrames = 0
	p.buffer = nil
	p.sampleRate = 0
	return u, true
}

// Reset discards any buffered frames and returns the processor to idle.
func (p *FrameProcessor) Reset() {
	p.speaking = false
	p.silenceFrames = 0
	p.buffer = nil
	p.sampleRate = 0
}

func (p *FrameProcessor) append(frame AudioFrame) {
	p.buffer = append(p.buffer, frame.Samples...)
	p.sampleRate = frame.SampleRate
}

// RMS computes the root-mean-square energy of a sample block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

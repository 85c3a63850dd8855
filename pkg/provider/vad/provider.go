// Package vad defines the Engine interface for voice-activity probability
// backends.
//
// A VAD engine wraps a frame-level speech detector (an energy model, Silero
// over ONNX, WebRTC VAD) and surfaces it as a stateful per-stream session that
// scores each frame with a speech probability in [0, 1]. Thresholding and
// utterance boundary decisions (start, redemption debounce, end) are the
// segmenter's job, not the engine's — keeping backends trivially swappable.
//
// VAD is synchronous by design: Probability returns immediately, making it
// suitable for the low-latency capture loop that gates STT input.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package vad

import "github.com/rdxlabs/duplytalk/pkg/audio"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// Probability. Common values: 8000, 16000, 48000.
	SampleRate int
}

// SessionHandle is an active VAD session for a single audio stream. Each
// session maintains its own smoothing state; Reset clears it without closing
// the session.
type SessionHandle interface {
	// Probability scores one capture frame and returns the speech probability
	// in [0, 1]. It must not block; it is called synchronously from the
	// capture loop.
	Probability(frame audio.AudioFrame) (float64, error)

	// Reset clears accumulated state (noise floor estimates, smoothing
	// history) without closing the session. Use when the stream restarts.
	Reset()

	// Close releases session resources. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
type Engine interface {
	// NewSession creates a session ready to accept frames. Returns an error if
	// cfg is invalid or resources cannot be allocated.
	NewSession(cfg Config) (SessionHandle, error)
}

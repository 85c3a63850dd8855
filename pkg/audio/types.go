// Package audio defines the audio types and processing primitives shared by the
// duplytalk pipeline: capture frames, utterances, the WAV container codec used
// for speech uploads, and playback of synthesized audio.
//
// The two stateful pieces are [FrameProcessor], a streaming energy-based
// speech/silence classifier that accumulates frames into utterances, and
// [Playback], the handle returned by a [Decoder] for one synthesized reply
// chunk.
//
// This package lives under pkg/ because capture sources and playback decoders
// are expected to be implemented outside the core (platform adapters, tests).
package audio

// AudioFrame is a fixed-size block of single-channel float32 samples produced
// periodically by the capture device. Frames are ephemeral: they are owned by
// the buffering stage until classified and must not be retained by consumers.
type AudioFrame struct {
	// Samples holds the PCM data in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for the STT-optimised capture path).
	SampleRate int
}

// Utterance is one continuous speech turn: the concatenated samples of every
// frame buffered between speech start and the trailing-silence flush.
//
// An Utterance is never mutated after hand-off to encoding; it is consumed
// exactly once and then discarded.
type Utterance struct {
	// Samples is the contiguous PCM data of the whole turn.
	Samples []float32

	// SampleRate in Hz, inherited from the buffered frames.
	SampleRate int
}

// Duration returns the utterance length in seconds.
func (u Utterance) Duration() float64 {
	if u.SampleRate <= 0 {
		return 0
	}
	return float64(len(u.Samples)) / float64(u.SampleRate)
}

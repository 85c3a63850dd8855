// Package stt defines the Provider interface for speech-to-text backends.
//
// The pipeline is turn-based: one finished utterance is encoded into a WAV
// container and submitted as a single request, so the contract is a plain
// request/response call rather than a streaming session. An empty transcript
// is a valid result (a silence misfire), not an error — callers decide what to
// do with it.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcript is the plain-text result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech. May be empty when the audio carried no
	// recognisable speech.
	Text string
}

// Empty reports whether the transcript carries no usable text.
func (t Transcript) Empty() bool { return t.Text == "" }

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe submits one utterance, encoded as a self-describing audio
	// container, and returns its transcript. The audio bytes are treated as
	// immutable. Returns an error only for transport or service failures;
	// silence yields an empty Transcript and a nil error.
	Transcribe(ctx context.Context, wav []byte) (Transcript, error)
}

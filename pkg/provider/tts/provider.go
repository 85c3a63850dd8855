// Package tts defines the Provider interface for text-to-speech backends.
//
// The pipeline synthesises one bounded text chunk at a time, strictly
// sequentially, so the contract is a single request/response call returning
// the encoded audio for that chunk. The encoding is the backend's choice
// (MP3, raw PCM, WAV) — callers treat the bytes as opaque and hand them to an
// [audio.Decoder].
//
// Service-policy refusals (account or abuse restrictions) are distinct from
// transport failures because remediation differs: they are surfaced as a
// [*PolicyError] so callers can report them as such.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
)

// VoiceProfile describes a synthesis voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (voice name for Google,
	// voice ID for ElevenLabs).
	ID string

	// LanguageCode is the BCP-47 tag, where the provider requires one.
	LanguageCode string

	// SpeakingRate adjusts speed (1.0 = default; 0 means provider default).
	SpeakingRate float64

	// Pitch adjusts pitch in provider-native units (0 means default).
	Pitch float64
}

// SynthesizedAudio is the encoded audio for one text chunk. Immutable once
// produced; decoded into a playable handle and then released.
type SynthesizedAudio struct {
	// Data is the encoded audio payload.
	Data []byte

	// MIMEType describes the encoding when the provider reports it
	// (e.g. "audio/mpeg", "audio/wav"). May be empty.
	MIMEType string
}

// PolicyError reports that the provider refused synthesis for account-policy
// reasons (abuse detection, quota class restrictions) rather than a transport
// or service fault. The session stays usable; the remediation is on the
// account side.
type PolicyError struct {
	// Provider names the backend that refused.
	Provider string

	// Code is the provider's policy status (e.g. "detected_unusual_activity").
	Code string

	// Message is the provider's human-readable explanation.
	Message string
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("tts: %s policy refusal (%s): %s", e.Provider, e.Code, e.Message)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts one text chunk into encoded audio using the given
	// voice. Returns a [*PolicyError] for policy refusals and a generic error
	// for transport or service failures.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (SynthesizedAudio, error)
}

package resilience

import (
	"context"

	"github.com/rdxlabs/duplytalk/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// transcription backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	group := NewFallbackGroup[stt.Provider]("stt", cfg)
	group.Add(primaryName, primary)
	return &STTFallback{group: group}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.Add(name, provider)
}

// Transcribe runs speech-to-text using the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, wav []byte) (stt.Transcript, error) {
	return DoWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, wav)
	})
}

package resilience

import (
	"context"

	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker. Account-policy
// refusals ([tts.PolicyError]) count as failures like any other error, so a
// backend that starts refusing synthesis is routed around and eventually
// circuit-broken.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	group := NewFallbackGroup[tts.Provider]("tts", cfg)
	group.Add(primaryName, primary)
	return &TTSFallback{group: group}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.Add(name, provider)
}

// Synthesize converts text to audio using the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.SynthesizedAudio, error) {
	return DoWithResult(f.group, func(p tts.Provider) (tts.SynthesizedAudio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// Package mock provides a scriptable [tts.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
)

// Call records one Synthesize invocation.
type Call struct {
	Text  string
	Voice tts.VoiceProfile
}

// Result scripts one Synthesize return value.
type Result struct {
	Audio tts.SynthesizedAudio
	Err   error
}

// Provider implements [tts.Provider] by replaying scripted Results in order,
// repeating the final entry once exhausted. A nil/empty script returns a
// one-byte payload so playback paths have something to decode.
type Provider struct {
	Results []Result

	mu    sync.Mutex
	calls []Call
	idx   int
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceProfile) (tts.SynthesizedAudio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Text: text, Voice: voice})
	if len(p.Results) == 0 {
		return tts.SynthesizedAudio{Data: []byte{0, 0}}, nil
	}
	r := p.Results[min(p.idx, len(p.Results)-1)]
	p.idx++
	return r.Audio, r.Err
}

// Calls returns a snapshot of every recorded invocation.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

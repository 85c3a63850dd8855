// Package mock provides a scriptable [stt.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/provider/stt"
)

// Call records one Transcribe invocation.
type Call struct {
	WAV []byte
}

// Result scripts one Transcribe return value.
type Result struct {
	Transcript stt.Transcript
	Err        error
}

// Provider implements [stt.Provider] by replaying scripted Results in order.
// Once the script is exhausted the final entry repeats. A nil/empty script
// returns empty transcripts.
type Provider struct {
	Results []Result

	mu    sync.Mutex
	calls []Call
	idx   int
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(_ context.Context, wav []byte) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(wav))
	copy(cp, wav)
	p.calls = append(p.calls, Call{WAV: cp})
	if len(p.Results) == 0 {
		return stt.Transcript{}, nil
	}
	r := p.Results[min(p.idx, len(p.Results)-1)]
	p.idx++
	return r.Transcript, r.Err
}

// Calls returns a snapshot of every recorded invocation.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

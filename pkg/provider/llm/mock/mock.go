// Package mock provides a scriptable [llm.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
)

// Result scripts one Complete return value.
type Result struct {
	Response *llm.CompletionResponse
	Err      error
}

// Provider implements [llm.Provider] by replaying scripted Results in order,
// repeating the final entry once exhausted. A nil/empty script returns empty
// responses.
type Provider struct {
	Results []Result

	mu    sync.Mutex
	calls []llm.CompletionRequest
	idx   int
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Complete implements [llm.Provider].
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if len(p.Results) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	r := p.Results[min(p.idx, len(p.Results)-1)]
	p.idx++
	if r.Err != nil {
		return nil, r.Err
	}
	resp := *r.Response
	return &resp, nil
}

// Calls returns a snapshot of every recorded request.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

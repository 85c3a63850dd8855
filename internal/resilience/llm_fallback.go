package resilience

import (
	"context"

	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// completion backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	group := NewFallbackGroup[llm.Provider]("llm", cfg)
	group.Add(primaryName, primary)
	return &LLMFallback{group: group}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.Add(name, provider)
}

// Complete generates a reply using the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

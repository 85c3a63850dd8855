// Package llm defines the Provider interface for completion backends.
//
// The conversation pipeline issues one completion per turn: the corrected
// transcript goes in, reply text comes out. Backends are configured for
// low-variance, short output (bounded token budget), so callers must treat
// the reply as potentially truncated and never assume a closing sentence
// terminator.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// CompletionRequest carries everything a backend needs for one reply.
type CompletionRequest struct {
	// Prompt is the user's transcript for this turn. Must be non-empty.
	Prompt string

	// SystemPrompt is an optional instruction injected before the prompt.
	SystemPrompt string

	// Temperature controls output randomness in [0, 2]. The pipeline default
	// is 0.1 for near-deterministic replies.
	Temperature float64

	// TopP and TopK further constrain sampling where the backend supports
	// them. Zero values mean provider defaults.
	TopP float64
	TopK int

	// MaxTokens caps the completion length. Zero means the provider default.
	// Replies cut off at this budget are reported via
	// [CompletionResponse.Truncated].
	MaxTokens int
}

// CompletionResponse is the reply for one turn.
type CompletionResponse struct {
	// Text is the full reply text. May be empty when the model declined to
	// answer (e.g. a safety refusal with no content).
	Text string

	// Truncated reports that generation stopped on the token budget rather
	// than at a natural end.
	Truncated bool
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. Returns an error if
	// the request fails or ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

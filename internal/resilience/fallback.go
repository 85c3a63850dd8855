package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every backend of a stage either failed or was
// shedding calls.
var ErrExhausted = errors.New("resilience: every backend failed")

// FallbackConfig configures the per-backend [Breaker] a [FallbackGroup]
// creates for each entry.
type FallbackConfig struct {
	Breaker BreakerConfig
}

// entry pairs one backend with its dedicated breaker.
type entry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// FallbackGroup orders the backends configured for one pipeline stage. A call
// goes to the first backend whose breaker admits it; a failure moves on to
// the next entry instead of surfacing, so the turn only aborts when the whole
// group is exhausted.
//
// Entries are fixed once the pipeline is wired; Do may be called from any
// goroutine.
type FallbackGroup[T any] struct {
	stage   string
	cfg     FallbackConfig
	entries []entry[T]
}

// NewFallbackGroup creates an empty group for the named pipeline stage
// ("stt", "llm", "tts"). The stage appears in log output and error text.
func NewFallbackGroup[T any](stage string, cfg FallbackConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{stage: stage, cfg: cfg}
}

// Add appends a backend. The first Add supplies the primary; later entries
// are tried in order when earlier ones fail.
func (g *FallbackGroup[T]) Add(name string, backend T) {
	g.entries = append(g.entries, entry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(g.stage+"/"+name, g.cfg.Breaker),
	})
}

// Do runs fn against each backend in order until one succeeds. Backends whose
// breaker is open are skipped. Returns [ErrExhausted] wrapped with the last
// failure when no backend answers.
func (g *FallbackGroup[T]) Do(fn func(T) error) error {
	_, err := DoWithResult(g, func(backend T) (struct{}, error) {
		return struct{}{}, fn(backend)
	})
	return err
}

// DoWithResult is [FallbackGroup.Do] for calls that produce a value. It is a
// package-level function because Go methods cannot introduce their own type
// parameters.
func DoWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		var out R
		err := e.breaker.Do(func() error {
			var callErr error
			out, callErr = fn(e.backend)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("resilience: backend shedding calls, skipping",
				"stage", g.stage, "backend", e.name)
		} else {
			slog.Warn("resilience: backend failed, trying next",
				"stage", g.stage, "backend", e.name, "err", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: %s: %v", ErrExhausted, g.stage, lastErr)
}

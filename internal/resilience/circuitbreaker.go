// Package resilience keeps the voice pipeline speaking when a provider
// backend degrades. A [Breaker] tracks consecutive failures against one
// backend and sheds calls while it cools down; a [FallbackGroup] orders the
// configured backends of a pipeline stage and tries them until one answers,
// so a failing transcription or synthesis service is routed around instead of
// aborting the turn.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the backend is cooling
// down after too many consecutive failures.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// State is a [Breaker]'s operating mode.
type State int

const (
	// StateClosed forwards every call to the backend.
	StateClosed State = iota

	// StateOpen sheds every call with [ErrBreakerOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls after the
	// cooldown. The probes decide whether the breaker closes again or
	// re-opens.
	StateHalfOpen
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero-value fields take the defaults noted
// on each field.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	// Default 5.
	Threshold int

	// Cooldown is how long the breaker sheds calls before probing the
	// backend again. Default 30s.
	Cooldown time.Duration

	// ProbeLimit bounds the calls admitted in the half-open state before the
	// breaker commits to closing or re-opening. Default 3.
	ProbeLimit int
}

// Breaker guards one backend of a pipeline stage. It is safe for concurrent
// use.
type Breaker struct {
	backend    string
	threshold  int
	cooldown   time.Duration
	probeLimit int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a [Breaker] for the named backend. The name appears in
// log output only.
func NewBreaker(backend string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = 3
	}
	return &Breaker{
		backend:    backend,
		threshold:  cfg.Threshold,
		cooldown:   cfg.Cooldown,
		probeLimit: cfg.ProbeLimit,
		state:      StateClosed,
	}
}

// Do runs fn if the breaker admits the call. While open it returns
// [ErrBreakerOpen] without touching the backend; in half-open only the probe
// budget's worth of calls go through.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.observe(err, probe)
	return err
}

// admit decides whether a call may proceed, reporting whether it counts as a
// half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			return false, ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("resilience: breaker probing backend", "backend", b.backend)

	case StateHalfOpen:
		if b.probes >= b.probeLimit {
			return false, ErrBreakerOpen
		}
	}

	if b.state == StateHalfOpen {
		b.probes++
		return true, nil
	}
	return false, nil
}

// observe folds one call outcome into the breaker state.
func (b *Breaker) observe(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if !probe {
			b.failures = 0
			return
		}
		if b.probes-b.probeFails >= b.probeLimit {
			b.state = StateClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("resilience: breaker closed, backend recovered",
				"backend", b.backend)
		}
		return
	}

	b.lastFailure = time.Now()
	if probe {
		// One failed probe re-opens for a full cooldown.
		b.probeFails++
		b.state = StateOpen
		b.failures = b.threshold
		slog.Warn("resilience: breaker re-opened, probe failed",
			"backend", b.backend)
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		slog.Warn("resilience: breaker opened, shedding calls",
			"backend", b.backend, "consecutive_failures", b.failures)
	}
}

// State returns the breaker's current mode. An open breaker whose cooldown
// has elapsed reports half-open; the stored state flips on the next [Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastFailure) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all failure accounting.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
	slog.Info("resilience: breaker reset", "backend", b.backend)
}

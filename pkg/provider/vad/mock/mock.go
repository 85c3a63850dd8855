// Package mock provides a scriptable [vad.Engine] for tests.
package mock

import (
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/provider/vad"
)

// Engine implements [vad.Engine]. Each created session replays the scripted
// Probabilities sequence, repeating the final value once exhausted.
type Engine struct {
	// Probabilities is the per-frame script handed to every new session.
	Probabilities []float64

	// NewSessionErr, when non-nil, is returned by NewSession.
	NewSessionErr error

	mu       sync.Mutex
	sessions []*Session
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{script: e.Probabilities, Config: cfg}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

// Sessions returns every session created so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// Session is the scripted [vad.SessionHandle] produced by [Engine.NewSession].
type Session struct {
	Config vad.Config

	mu         sync.Mutex
	script     []float64
	idx        int
	Frames     []audio.AudioFrame
	ResetCalls int
	Closed     bool
}

// Probability implements [vad.SessionHandle] by replaying the script.
func (s *Session) Probability(frame audio.AudioFrame) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, frame)
	if len(s.script) == 0 {
		return 0, nil
	}
	p := s.script[min(s.idx, len(s.script)-1)]
	s.idx++
	return p, nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = 0
	s.ResetCalls++
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

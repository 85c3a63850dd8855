// Package mock provides in-memory [room.Client], [room.Session] and
// [room.Track] doubles for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/room"
)

// Client implements [room.Client]. Each Join records its arguments and
// returns a fresh [*Session] (or JoinErr when set).
type Client struct {
	// JoinErr, when non-nil, fails every Join call.
	JoinErr error

	mu       sync.Mutex
	joins    []JoinCall
	sessions []*Session
}

// JoinCall records one Join invocation.
type JoinCall struct {
	URL   string
	Token string
}

// Compile-time interface assertions.
var (
	_ room.Client  = (*Client)(nil)
	_ room.Session = (*Session)(nil)
	_ room.Track   = (*Track)(nil)
)

// Join implements [room.Client].
func (c *Client) Join(_ context.Context, url, token string) (room.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, JoinCall{URL: url, Token: token})
	if c.JoinErr != nil {
		return nil, c.JoinErr
	}
	s := &Session{}
	c.sessions = append(c.sessions, s)
	return s, nil
}

// Joins returns a snapshot of recorded Join calls.
func (c *Client) Joins() []JoinCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]JoinCall, len(c.joins))
	copy(out, c.joins)
	return out
}

// Sessions returns every session handed out so far.
func (c *Client) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// Session implements [room.Session] in memory.
type Session struct {
	// PublishErr, when non-nil, fails every PublishTrack call.
	PublishErr error

	mu          sync.Mutex
	published   []*Track
	unpublished []*Track
	left        bool
}

// PublishTrack implements [room.Session].
func (s *Session) PublishTrack(_ context.Context, name string) (room.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return nil, errors.New("mock: session left")
	}
	if s.PublishErr != nil {
		return nil, s.PublishErr
	}
	t := &Track{name: name}
	s.published = append(s.published, t)
	return t, nil
}

// UnpublishTrack implements [room.Session].
func (s *Session) UnpublishTrack(tr room.Track) error {
	t, ok := tr.(*Track)
	if !ok {
		return errors.New("mock: foreign track")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.close()
	s.unpublished = append(s.unpublished, t)
	return nil
}

// Leave implements [room.Session].
func (s *Session) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = true
	for _, t := range s.published {
		t.close()
	}
	return nil
}

// Left reports whether Leave has been called.
func (s *Session) Left() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

// Published returns every track published on this session, in order.
func (s *Session) Published() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.published))
	copy(out, s.published)
	return out
}

// Unpublished returns every track unpublished so far, in order.
func (s *Session) Unpublished() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.unpublished))
	copy(out, s.unpublished)
	return out
}

// Track implements [room.Track], retaining every written frame.
type Track struct {
	name string

	mu     sync.Mutex
	frames []audio.AudioFrame
	closed bool
}

// Name implements [room.Track].
func (t *Track) Name() string { return t.name }

// Write implements [room.Track].
func (t *Track) Write(frame audio.AudioFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("mock: track unpublished")
	}
	t.frames = append(t.frames, frame)
	return nil
}

// Frames returns a snapshot of every frame written to the track.
func (t *Track) Frames() []audio.AudioFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]audio.AudioFrame, len(t.frames))
	copy(out, t.frames)
	return out
}

func (t *Track) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

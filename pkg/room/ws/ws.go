// Package ws implements the [room.Client] contract over a websocket media
// gateway.
//
// The protocol is deliberately small. Control messages are JSON text frames:
//
//	→ {"type":"publish","id":1,"name":"microphone","codec":"opus","sample_rate":16000}
//	→ {"type":"unpublish","id":1}
//	← {"type":"error","message":"..."}
//
// Media is sent as binary frames: a 2-byte big-endian track id followed by
// one Opus packet. PCM written to a track is accumulated into 20 ms frames
// and Opus-encoded before hitting the wire.
package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/rdxlabs/duplytalk/pkg/room"
)

// frameMs is the Opus packet duration. 20 ms is the codec's sweet spot and
// matches the playback frame pacing.
const frameMs = 20

// Client implements [room.Client] against a websocket media gateway.
type Client struct {
	httpClient *http.Client
}

// Compile-time interface assertions.
var (
	_ room.Client  = (*Client)(nil)
	_ room.Session = (*session)(nil)
	_ room.Track   = (*track)(nil)
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for the websocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a websocket room Client.
func New(opts ...Option) *Client {
	c := &Client{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Join implements [room.Client]. The credential travels as a bearer token on
// the handshake; the room is whatever the token's grant scopes.
func (c *Client) Join(ctx context.Context, url, token string) (room.Session, error) {
	if token == "" {
		return nil, errors.New("ws: token must not be empty")
	}

	opts := &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	}
	if c.httpClient != nil {
		opts.HTTPClient = c.httpClient
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}

	s := &session{
		conn:   conn,
		tracks: make(map[uint16]*track),
	}
	go s.readLoop()
	return s, nil
}

// ─── session ──────────────────────────────────────────────────────────────────

// controlMessage is the JSON envelope for text frames in both directions.
type controlMessage struct {
	Type       string `json:"type"`
	ID         uint16 `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Message    string `json:"message,omitempty"`
}

var errSessionClosed = errors.New("ws: session is closed")

type session struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID uint16
	tracks map[uint16]*track
	closed bool
}

// PublishTrack implements [room.Session].
func (s *session) PublishTrack(ctx context.Context, name string) (room.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}

	s.nextID++
	t := &track{sess: s, id: s.nextID, name: name}

	msg := controlMessage{Type: "publish", ID: t.id, Name: name, Codec: "opus"}
	if err := s.writeControlLocked(ctx, msg); err != nil {
		return nil, fmt.Errorf("ws: publish %q: %w", name, err)
	}
	s.tracks[t.id] = t
	return t, nil
}

// UnpublishTrack implements [room.Session].
func (s *session) UnpublishTrack(tr room.Track) error {
	t, ok := tr.(*track)
	if !ok {
		return errors.New("ws: track was not published on this session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.tracks[t.id]; !live {
		return nil // already unpublished
	}
	delete(s.tracks, t.id)
	t.detach()
	if s.closed {
		return nil
	}
	msg := controlMessage{Type: "unpublish", ID: t.id}
	if err := s.writeControlLocked(context.Background(), msg); err != nil {
		return fmt.Errorf("ws: unpublish %q: %w", t.name, err)
	}
	return nil
}

// Leave implements [room.Session].
func (s *session) Leave() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, t := range s.tracks {
		t.detach()
		delete(s.tracks, id)
	}
	s.mu.Unlock()

	return s.conn.Close(websocket.StatusNormalClosure, "leaving")
}

// writeControlLocked sends one JSON control frame. Callers hold s.mu, which
// also serialises writes on the connection.
func (s *session) writeControlLocked(ctx context.Context, msg controlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// writeMedia sends one binary media frame for the given track id.
func (s *session) writeMedia(id uint16, packet []byte) error {
	buf := make([]byte, 2+len(packet))
	binary.BigEndian.PutUint16(buf, id)
	copy(buf[2:], packet)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	return s.conn.Write(context.Background(), websocket.MessageBinary, buf)
}

// readLoop drains inbound frames so the connection processes control frames
// and close handshakes. Subscribed media is not consumed by this client;
// inbound binary frames are discarded. The loop exits when the transport
// drops, marking the session closed.
func (s *session) readLoop() {
	for {
		typ, data, err := s.conn.Read(context.Background())
		if err != nil {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "error" {
			// Server-side rejection of a control message. The session itself
			// stays up; the failed operation already returned to its caller.
			continue
		}
	}
}

package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/rdxlabs/duplytalk/pkg/audio"
)

// wsFrame is one frame as seen by the test gateway.
type wsFrame struct {
	typ  websocket.MessageType
	data []byte
}

// testGateway accepts a single websocket session and records every inbound
// frame.
type testGateway struct {
	srv    *httptest.Server
	frames chan wsFrame
	auth   chan string
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	g := &testGateway{
		frames: make(chan wsFrame, 64),
		auth:   make(chan string, 1),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.auth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			g.frames <- wsFrame{typ: typ, data: data}
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *testGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *testGateway) nextFrame(t *testing.T) wsFrame {
	t.Helper()
	select {
	case f := <-g.frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return wsFrame{}
	}
}

func (g *testGateway) nextControl(t *testing.T) controlMessage {
	t.Helper()
	f := g.nextFrame(t)
	if f.typ != websocket.MessageText {
		t.Fatalf("frame type = %v, want text", f.typ)
	}
	var msg controlMessage
	if err := json.Unmarshal(f.data, &msg); err != nil {
		t.Fatalf("unmarshal control: %v", err)
	}
	return msg
}

func TestJoin_RequiresToken(t *testing.T) {
	if _, err := New().Join(context.Background(), "ws://irrelevant", ""); err == nil {
		t.Error("empty token accepted")
	}
}

func TestSession_PublishWriteUnpublishLeave(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	sess, err := New().Join(ctx, g.url(), "join-token")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := <-g.auth; got != "Bearer join-token" {
		t.Errorf("authorization = %q", got)
	}

	tr, err := sess.PublishTrack(ctx, "microphone")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if tr.Name() != "microphone" {
		t.Errorf("track name = %q", tr.Name())
	}
	pub := g.nextControl(t)
	if pub.Type != "publish" || pub.ID != 1 || pub.Name != "microphone" || pub.Codec != "opus" {
		t.Errorf("publish control = %+v", pub)
	}

	// One 20 ms frame at 16 kHz produces exactly one media packet.
	frame := audio.AudioFrame{Samples: make([]float32, 320), SampleRate: 16000}
	for i := range frame.Samples {
		frame.Samples[i] = 0.1
	}
	if err := tr.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	media := g.nextFrame(t)
	if media.typ != websocket.MessageBinary {
		t.Fatalf("media frame type = %v, want binary", media.typ)
	}
	if len(media.data) < 3 {
		t.Fatalf("media frame too short: %d bytes", len(media.data))
	}
	if id := binary.BigEndian.Uint16(media.data); id != 1 {
		t.Errorf("media track id = %d, want 1", id)
	}

	if err := sess.UnpublishTrack(tr); err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	unpub := g.nextControl(t)
	if unpub.Type != "unpublish" || unpub.ID != 1 {
		t.Errorf("unpublish control = %+v", unpub)
	}

	// Unpublishing again is a no-op, and the track refuses further writes.
	if err := sess.UnpublishTrack(tr); err != nil {
		t.Errorf("second unpublish: %v", err)
	}
	if err := tr.Write(frame); err == nil {
		t.Error("write on an unpublished track succeeded")
	}

	if err := sess.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := sess.Leave(); err != nil {
		t.Errorf("second leave: %v", err)
	}
}

func TestTrack_AccumulatesSubFrameWrites(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	sess, err := New().Join(ctx, g.url(), "join-token")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer sess.Leave()
	<-g.auth

	tr, err := sess.PublishTrack(ctx, "reply-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	g.nextControl(t)

	// Two 10 ms halves make one 20 ms packet.
	half := audio.AudioFrame{Samples: make([]float32, 160), SampleRate: 16000}
	if err := tr.Write(half); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case f := <-g.frames:
		t.Fatalf("packet sent below one block: %v", f.typ)
	case <-time.After(50 * time.Millisecond):
	}
	if err := tr.Write(half); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := g.nextFrame(t); f.typ != websocket.MessageBinary {
		t.Errorf("frame type = %v, want binary", f.typ)
	}
}

func TestTrack_RejectsSampleRateChange(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	sess, err := New().Join(ctx, g.url(), "join-token")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer sess.Leave()
	<-g.auth

	tr, err := sess.PublishTrack(ctx, "microphone")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	g.nextControl(t)

	if err := tr.Write(audio.AudioFrame{Samples: make([]float32, 160), SampleRate: 16000}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := tr.Write(audio.AudioFrame{Samples: make([]float32, 160), SampleRate: 48000}); err == nil {
		t.Error("sample rate change accepted")
	}
}

func TestSession_PublishAfterLeaveFails(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	sess, err := New().Join(ctx, g.url(), "join-token")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	<-g.auth

	if err := sess.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := sess.PublishTrack(ctx, "microphone"); err == nil {
		t.Error("publish on a left session succeeded")
	}
}

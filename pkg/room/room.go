// Package room defines the client contract for the realtime media-room
// transport: join a room with a scoped credential, publish audio tracks,
// unpublish them, leave.
//
// The conversation orchestrator is the only writer of room state. It publishes
// the local microphone track for the lifetime of the session and one ad-hoc
// track per synthesized reply chunk, unpublished again when that chunk's
// playback ends.
//
// Implementations wrap a concrete transport (the websocket media gateway in
// [github.com/rdxlabs/duplytalk/pkg/room/ws], an SFU SDK, a test double) and
// must be safe for concurrent use.
package room

import (
	"context"

	"github.com/rdxlabs/duplytalk/pkg/audio"
)

// Track is a published outgoing audio track. Frames written to it are
// delivered to the room until the track is unpublished.
type Track interface {
	// Name returns the track's label as announced to the room.
	Name() string

	// Write delivers one PCM frame to the room. Returns an error once the
	// track is unpublished or the session is gone.
	Write(frame audio.AudioFrame) error
}

// Session is an active join to a media room. Sessions are single-use: once
// Leave returns, the session is dead and every method errors.
type Session interface {
	// PublishTrack announces a new outgoing audio track with the given label
	// and returns its handle.
	PublishTrack(ctx context.Context, name string) (Track, error)

	// UnpublishTrack withdraws a published track. Unpublishing a track twice
	// is a no-op.
	UnpublishTrack(track Track) error

	// Leave tears the session down: every published track is withdrawn and
	// the transport is closed. Safe to call more than once.
	Leave() error
}

// Client joins media rooms.
type Client interface {
	// Join connects to the room scoped by token at the given transport URL.
	// The returned Session is live until Leave is called or the transport
	// drops.
	Join(ctx context.Context, url, token string) (Session, error)
}

// Package orchestrator owns the conversation pipeline's connection state
// machine and drives each speech turn through it: completed utterance → WAV
// encode → transcription → reply completion → chunked synthesis → paced
// playback → room republish.
//
// One Orchestrator owns exactly one room session, one microphone track and
// one segmenter at a time; all of them exist if and only if the state is
// connected. Disconnect interrupts an in-flight turn cooperatively: no
// cancellation token is threaded into network calls — instead the turn loop
// re-checks the connection state after every suspension point and abandons
// the rest of the turn once the state has left connected.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"github.com/rdxlabs/duplytalk/internal/gateway"
	"github.com/rdxlabs/duplytalk/internal/observe"
	"github.com/rdxlabs/duplytalk/internal/segment"
	"github.com/rdxlabs/duplytalk/internal/token"
	"github.com/rdxlabs/duplytalk/internal/transcript"
	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
	"github.com/rdxlabs/duplytalk/pkg/provider/vad"
	"github.com/rdxlabs/duplytalk/pkg/room"
)

// State is the orchestrator's connection state.
type State int32

const (
	// StateDisconnected is the idle state. No room session, no capture.
	StateDisconnected State = iota

	// StateConnecting covers the connect sequence: credential fetch, room
	// join, microphone publish, segmenter start.
	StateConnecting

	// StateConnected means the session is live and utterances are processed.
	StateConnected

	// StateDisconnecting covers teardown. Entered only from connected.
	StateDisconnecting
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// micTrackName labels the published local microphone track.
const micTrackName = "microphone"

// turnQueueDepth bounds utterances waiting behind an in-progress turn.
// Overflow drops the newest utterance rather than blocking the capture loop.
const turnQueueDepth = 4

// Config carries the orchestrator's session parameters.
type Config struct {
	// RoomURL is the media-gateway websocket endpoint.
	RoomURL string

	// RoomName scopes the join credential. Empty lets the token service pick.
	RoomName string

	// Identity is the participant identity. Empty lets the token service pick.
	Identity string

	// SampleRate of the capture frames in Hz.
	SampleRate int

	// Segmenter holds the utterance-boundary thresholds. Zero values take the
	// segment package defaults.
	Segmenter segment.Config

	// SystemPrompt is prepended to every completion request.
	SystemPrompt string

	// Temperature, TopP, TopK and MaxTokens configure the completion request.
	// The pipeline wants low-variance short replies; main wires 0.1/0.1/1 and
	// a bounded token budget.
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int

	// Voice selects the synthesis voice.
	Voice tts.VoiceProfile

	// ChunkMaxLen bounds each synthesis chunk (default 120).
	ChunkMaxLen int

	// PublishReplies controls whether synthesized chunks are republished into
	// the room as ad-hoc tracks. Local playback happens either way.
	PublishReplies bool
}

// Deps are the orchestrator's collaborators. All fields are required except
// Sink (nil plays into a DiscardSink).
type Deps struct {
	// Tokens fetches join credentials.
	Tokens *token.Client

	// Rooms joins the media room.
	Rooms room.Client

	// VAD provides speech-probability sessions for the segmenter.
	VAD vad.Engine

	// Gateway fronts the STT, LLM and TTS collaborators.
	Gateway *gateway.Gateway

	// Capture acquires the microphone. Called once per connect; the returned
	// source is released when the session ends.
	Capture func() (audio.Source, error)

	// Decoder turns synthesized bytes into paced playback.
	Decoder audio.Decoder

	// Sink receives playback frames for local output.
	Sink audio.Sink
}

// Observer receives pipeline notifications. All fields are optional. Hooks
// are invoked synchronously from pipeline goroutines and must return quickly.
type Observer struct {
	// OnStateChange fires on every connection state transition.
	OnStateChange func(s State)

	// OnSpeechStart fires when the segmenter detects an utterance beginning.
	OnSpeechStart func()

	// OnTranscript fires with the corrected transcript of each turn.
	OnTranscript func(text string)

	// OnReply fires with the reply text as soon as the completion returns,
	// before any of it has been spoken.
	OnReply func(text string)

	// OnTurnError fires when a turn is aborted by a collaborator failure.
	// Policy refusals arrive as a [tts.PolicyError] inside the chain.
	OnTurnError func(err error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver attaches notification hooks.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

// WithCorrector attaches a hotword transcript corrector applied between STT
// and completion.
func WithCorrector(c *transcript.Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger overrides the logger (default slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator is the conversation pipeline's state machine. Safe for
// concurrent use; Connect and Disconnect may be called from any goroutine.
type Orchestrator struct {
	cfg  Config
	deps Deps

	obs       Observer
	corrector *transcript.Corrector
	metrics   *observe.Metrics
	log       *slog.Logger

	replySeq atomic.Uint64

	mu         sync.Mutex
	state      State
	session    room.Session
	mic        room.Track
	seg        *segment.Segmenter
	turns      chan audio.Utterance
	workerDone chan struct{}
}

// New creates an Orchestrator. Deps must carry every collaborator except Sink.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Tokens == nil:
		return nil, errors.New("orchestrator: token client is required")
	case deps.Rooms == nil:
		return nil, errors.New("orchestrator: room client is required")
	case deps.VAD == nil:
		return nil, errors.New("orchestrator: VAD engine is required")
	case deps.Gateway == nil:
		return nil, errors.New("orchestrator: gateway is required")
	case deps.Capture == nil:
		return nil, errors.New("orchestrator: capture source is required")
	case deps.Decoder == nil:
		return nil, errors.New("orchestrator: decoder is required")
	}
	if deps.Sink == nil {
		deps.Sink = audio.DiscardSink{}
	}
	if cfg.ChunkMaxLen <= 0 {
		cfg.ChunkMaxLen = 120
	}
	if cfg.Segmenter.SampleRate == 0 {
		cfg.Segmenter.SampleRate = cfg.SampleRate
	}
	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current connection state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) connected() bool { return o.State() == StateConnected }

// transition moves from one state to another atomically, notifying the
// observer on success. Returns false when the current state is not from.
func (o *Orchestrator) transition(from, to State) bool {
	o.mu.Lock()
	if o.state != from {
		o.mu.Unlock()
		return false
	}
	o.state = to
	o.mu.Unlock()

	o.log.Info("orchestrator: state change", "from", from, "to", to)
	if o.obs.OnStateChange != nil {
		o.obs.OnStateChange(to)
	}
	return true
}

// Connect brings the pipeline up: fetch a join credential, join the room,
// publish the microphone track, acquire the capture device and start the
// segmenter. Valid only from disconnected; calling while connecting or
// connected is a no-op. On any mid-sequence failure every partially acquired
// resource is released and the state returns to disconnected.
func (o *Orchestrator) Connect(ctx context.Context) error {
	if !o.transition(StateDisconnected, StateConnecting) {
		return nil
	}

	fail := func(stage string, err error, rollback func()) error {
		if rollback != nil {
			rollback()
		}
		o.transition(StateConnecting, StateDisconnected)
		return fmt.Errorf("orchestrator: connect: %s: %w", stage, err)
	}

	cred, err := o.deps.Tokens.Fetch(ctx, o.cfg.Identity, o.cfg.RoomName)
	if err != nil {
		return fail("fetch credential", err, nil)
	}

	sess, err := o.deps.Rooms.Join(ctx, o.cfg.RoomURL, cred.Token)
	if err != nil {
		return fail("join room", err, nil)
	}

	mic, err := sess.PublishTrack(ctx, micTrackName)
	if err != nil {
		return fail("publish microphone", err, func() {
			o.leave(sess)
		})
	}

	source, err := o.deps.Capture()
	if err != nil {
		return fail("acquire capture", err, func() {
			o.unpublish(sess, mic)
			o.leave(sess)
		})
	}

	relay := newRelay(source, mic, o.log)
	seg := segment.New(o.deps.VAD, o.cfg.Segmenter, segment.Callbacks{
		OnSpeechStart: o.speechStart,
		OnSpeechEnd:   o.enqueue,
	})
	if err := seg.Start(relay); err != nil {
		return fail("start segmenter", err, func() {
			relay.Stop()
			o.unpublish(sess, mic)
			o.leave(sess)
		})
	}

	turns := make(chan audio.Utterance, turnQueueDepth)
	workerDone := make(chan struct{})

	o.mu.Lock()
	o.session = sess
	o.mic = mic
	o.seg = seg
	o.turns = turns
	o.workerDone = workerDone
	o.mu.Unlock()

	go o.turnLoop(turns, workerDone, sess)

	if !o.transition(StateConnecting, StateConnected) {
		// Unreachable in practice: nothing else transitions out of connecting.
		return errors.New("orchestrator: connect: state changed during connect")
	}
	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	o.log.Info("orchestrator: connected",
		"identity", cred.Identity, "room", cred.RoomName)
	return nil
}

// Disconnect tears the pipeline down: stop the segmenter (which releases the
// capture device), drain the turn worker, unpublish the microphone and leave
// the room. Valid only from connected; calling in any other state is a no-op.
// An in-flight turn is abandoned at its next suspension point.
func (o *Orchestrator) Disconnect() error {
	if !o.transition(StateConnected, StateDisconnecting) {
		return nil
	}

	o.mu.Lock()
	sess, mic, seg := o.session, o.mic, o.seg
	turns, workerDone := o.turns, o.workerDone
	o.session, o.mic, o.seg, o.turns, o.workerDone = nil, nil, nil, nil, nil
	o.mu.Unlock()

	// No callback fires after Stop returns, so closing the turn queue below
	// cannot race a late enqueue.
	seg.Stop()
	close(turns)
	<-workerDone

	o.unpublish(sess, mic)
	err := o.leave(sess)

	o.transition(StateDisconnecting, StateDisconnected)
	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	o.log.Info("orchestrator: disconnected")
	return err
}

func (o *Orchestrator) unpublish(sess room.Session, track room.Track) {
	if track == nil {
		return
	}
	if err := sess.UnpublishTrack(track); err != nil {
		o.log.Warn("orchestrator: unpublish track", "track", track.Name(), "err", err)
	}
}

func (o *Orchestrator) leave(sess room.Session) error {
	if err := sess.Leave(); err != nil {
		o.log.Warn("orchestrator: leave room", "err", err)
		return fmt.Errorf("orchestrator: leave room: %w", err)
	}
	return nil
}

// speechStart relays the segmenter's utterance-begin signal.
func (o *Orchestrator) speechStart() {
	if o.obs.OnSpeechStart != nil {
		o.obs.OnSpeechStart()
	}
}

// enqueue hands a completed utterance to the turn worker. When the queue is
// full the utterance is dropped; blocking here would stall the capture loop.
func (o *Orchestrator) enqueue(u audio.Utterance) {
	o.mu.Lock()
	turns := o.turns
	o.mu.Unlock()
	if turns == nil {
		return
	}
	select {
	case turns <- u:
	default:
		o.log.Warn("orchestrator: turn queue full, dropping utterance",
			"duration_s", u.Duration())
	}
}

// turnLoop processes queued utterances strictly in order, one at a time.
func (o *Orchestrator) turnLoop(turns <-chan audio.Utterance, done chan<- struct{}, sess room.Session) {
	defer close(done)
	for u := range turns {
		if !o.connected() {
			continue
		}
		o.runTurn(u, sess)
	}
}

func (o *Orchestrator) countTurn(outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.Turns.Add(context.Background(), 1,
		metric.WithAttributes(turnOutcome(outcome)))
}

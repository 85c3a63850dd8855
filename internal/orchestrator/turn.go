package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rdxlabs/duplytalk/internal/chunk"
	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
	"github.com/rdxlabs/duplytalk/pkg/room"
)

func turnOutcome(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}

// errTurnCancelled marks a turn abandoned because the orchestrator left the
// connected state. It never escapes the turn loop.
var errTurnCancelled = errors.New("turn cancelled")

// runTurn drives one utterance through the full pipeline. Collaborator
// failures abort only this turn; the session stays live. The connection state
// is re-checked after every suspension point so Disconnect can abandon the
// remainder of the turn without a cancellation token.
func (o *Orchestrator) runTurn(u audio.Utterance, sess room.Session) {
	ctx := context.Background()
	start := time.Now()

	transcriptText, ok := o.transcribeTurn(ctx, u)
	if !ok {
		return
	}

	replyText, ok := o.completeTurn(ctx, transcriptText)
	if !ok {
		return
	}

	for i, text := range chunk.Split(replyText, o.cfg.ChunkMaxLen) {
		if !o.connected() {
			o.countTurn("cancelled")
			return
		}
		if err := o.speakChunk(ctx, sess, i, text); err != nil {
			if errors.Is(err, errTurnCancelled) {
				o.countTurn("cancelled")
			} else {
				o.turnError(err)
			}
			return
		}
	}

	o.countTurn("completed")
	if o.metrics != nil {
		o.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}
	o.log.Debug("orchestrator: turn complete",
		"utterance_s", u.Duration(), "elapsed", time.Since(start))
}

// transcribeTurn encodes and transcribes the utterance. Returns ok=false when
// the turn should stop here: collaborator failure, empty transcript (a silence
// misfire, silently dropped) or a state change away from connected.
func (o *Orchestrator) transcribeTurn(ctx context.Context, u audio.Utterance) (string, bool) {
	wav := audio.EncodeWAV(u)
	tr, err := o.deps.Gateway.Transcribe(ctx, wav)
	if err != nil {
		o.turnError(fmt.Errorf("transcribe: %w", err))
		return "", false
	}
	if !o.connected() {
		o.countTurn("cancelled")
		return "", false
	}
	if tr.Empty() {
		o.countTurn("empty")
		return "", false
	}

	text := tr.Text
	if o.corrector != nil {
		corrected, corrections := o.corrector.Correct(text)
		for _, c := range corrections {
			o.log.Debug("orchestrator: transcript correction",
				"original", c.Original, "corrected", c.Corrected,
				"confidence", c.Confidence)
		}
		text = corrected
	}
	if o.obs.OnTranscript != nil {
		o.obs.OnTranscript(text)
	}
	return text, true
}

// completeTurn requests the reply text and surfaces it to observers before
// any of it is spoken.
func (o *Orchestrator) completeTurn(ctx context.Context, transcriptText string) (string, bool) {
	resp, err := o.deps.Gateway.Respond(ctx, llm.CompletionRequest{
		Prompt:       transcriptText,
		SystemPrompt: o.cfg.SystemPrompt,
		Temperature:  o.cfg.Temperature,
		TopP:         o.cfg.TopP,
		TopK:         o.cfg.TopK,
		MaxTokens:    o.cfg.MaxTokens,
	})
	if err != nil {
		o.turnError(fmt.Errorf("complete: %w", err))
		return "", false
	}
	if !o.connected() {
		o.countTurn("cancelled")
		return "", false
	}
	if o.obs.OnReply != nil {
		o.obs.OnReply(resp.Text)
	}
	return resp.Text, true
}

// speakChunk synthesizes one reply chunk, publishes it as an ad-hoc room
// track when reply publishing is on, and plays it to the local sink paced at
// the audio clock. It returns only after playback has fully ended, so chunks
// never overlap.
func (o *Orchestrator) speakChunk(ctx context.Context, sess room.Session, idx int, text string) error {
	synth, err := o.deps.Gateway.Synthesize(ctx, text, o.cfg.Voice)
	if err != nil {
		return fmt.Errorf("synthesize chunk %d: %w", idx, err)
	}
	if !o.connected() {
		return errTurnCancelled
	}

	pb, err := o.deps.Decoder.Decode(ctx, synth.Data)
	if err != nil {
		return fmt.Errorf("decode chunk %d: %w", idx, err)
	}
	defer pb.Stop()

	var track room.Track
	if o.cfg.PublishReplies && sess != nil {
		name := fmt.Sprintf("reply-%d", o.replySeq.Add(1))
		track, err = sess.PublishTrack(ctx, name)
		if err != nil {
			// Local playback still proceeds; the room just misses this chunk.
			o.log.Warn("orchestrator: publish reply track", "chunk", idx, "err", err)
			track = nil
		}
	}
	defer func() {
		if track == nil {
			return
		}
		o.unpublish(sess, track)
		if o.metrics != nil {
			o.metrics.PublishedTracks.Add(ctx, 1)
		}
	}()

	for frame := range pb.Frames() {
		if err := o.deps.Sink.Write(frame); err != nil {
			o.log.Warn("orchestrator: local playback write", "err", err)
		}
		if track != nil {
			if err := track.Write(frame); err != nil {
				o.log.Warn("orchestrator: reply track write", "err", err)
				track = nil
			}
		}
		if !o.connected() {
			// Abandon the rest of this chunk; Stop drains Frames promptly.
			pb.Stop()
		}
	}
	return nil
}

// turnError reports a turn-scoped failure. Policy refusals from the TTS
// backend get their own log shape since remediation differs from a transport
// failure.
func (o *Orchestrator) turnError(err error) {
	var policyErr *tts.PolicyError
	if errors.As(err, &policyErr) {
		o.log.Error("orchestrator: synthesis refused by provider policy",
			"provider", policyErr.Provider, "code", policyErr.Code,
			"message", policyErr.Message)
	} else {
		o.log.Error("orchestrator: turn aborted", "err", err)
	}
	o.countTurn("error")
	if o.obs.OnTurnError != nil {
		o.obs.OnTurnError(err)
	}
}

package segment

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rdxlabs/duplytalk/pkg/audio"
	vadmock "github.com/rdxlabs/duplytalk/pkg/provider/vad/mock"
)

const testFrameLen = 160

// speechFrames builds n identical capture frames. The sample values are
// irrelevant because the mock engine scripts the probabilities.
func speechFrames(n int) []audio.AudioFrame {
	frames := make([]audio.AudioFrame, n)
	for i := range frames {
		frames[i] = audio.AudioFrame{Samples: make([]float32, testFrameLen), SampleRate: 16000}
	}
	return frames
}

func TestSegmenter_OneCallbackPairPerTurn(t *testing.T) {
	engine := &vadmock.Engine{
		// silence, speech onset, sustained, then a full redemption window.
		Probabilities: []float64{0.1, 0.9, 0.9, 0.5, 0.5, 0.5},
	}

	starts := make(chan struct{}, 4)
	ends := make(chan audio.Utterance, 4)
	s := New(engine, Config{SampleRate: 16000, RedemptionFrames: 3}, Callbacks{
		OnSpeechStart: func() { starts <- struct{}{} },
		OnSpeechEnd:   func(u audio.Utterance) { ends <- u },
	})

	if err := s.Start(audio.NewSliceSource(speechFrames(6))); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	select {
	case <-starts:
	case <-time.After(5 * time.Second):
		t.Fatal("OnSpeechStart never fired")
	}
	var u audio.Utterance
	select {
	case u = <-ends:
	case <-time.After(5 * time.Second):
		t.Fatal("OnSpeechEnd never fired")
	}

	// The utterance spans the onset frame through the final redemption frame:
	// 2 speech frames plus 3 low-probability frames.
	if want := 5 * testFrameLen; len(u.Samples) != want {
		t.Errorf("utterance samples = %d, want %d", len(u.Samples), want)
	}
	if u.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", u.SampleRate)
	}
	select {
	case <-starts:
		t.Error("OnSpeechStart fired more than once")
	case <-ends:
		t.Error("OnSpeechEnd fired more than once")
	default:
	}
}

func TestSegmenter_BriefPauseDoesNotEndTheTurn(t *testing.T) {
	engine := &vadmock.Engine{
		// Two low frames mid-turn, then speech resumes, then a full window.
		Probabilities: []float64{0.9, 0.5, 0.5, 0.9, 0.5, 0.5, 0.5},
	}

	ends := make(chan audio.Utterance, 4)
	s := New(engine, Config{SampleRate: 16000, RedemptionFrames: 3}, Callbacks{
		OnSpeechEnd: func(u audio.Utterance) { ends <- u },
	})

	if err := s.Start(audio.NewSliceSource(speechFrames(7))); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	var u audio.Utterance
	select {
	case u = <-ends:
	case <-time.After(5 * time.Second):
		t.Fatal("OnSpeechEnd never fired")
	}
	// All 7 frames belong to the single turn; the mid-turn dip was redeemed.
	if want := 7 * testFrameLen; len(u.Samples) != want {
		t.Errorf("utterance samples = %d, want %d", len(u.Samples), want)
	}
	select {
	case <-ends:
		t.Error("got a second utterance from one speech run")
	default:
	}
}

func TestSegmenter_OnsetAtExactThreshold(t *testing.T) {
	engine := &vadmock.Engine{Probabilities: []float64{0.85}}

	started := make(chan struct{}, 1)
	s := New(engine, Config{SampleRate: 16000}, Callbacks{
		OnSpeechStart: func() { started <- struct{}{} },
	})
	if err := s.Start(audio.NewSliceSource(speechFrames(1))); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("probability equal to the positive threshold must begin a turn")
	}
}

func TestSegmenter_StopDiscardsInFlightTurn(t *testing.T) {
	engine := &vadmock.Engine{Probabilities: []float64{0.9}} // speech forever

	var stopped atomic.Bool
	started := make(chan struct{}, 1)
	s := New(engine, Config{SampleRate: 16000}, Callbacks{
		OnSpeechStart: func() {
			select {
			case started <- struct{}{}:
			default:
			}
		},
		OnSpeechEnd: func(audio.Utterance) {
			if stopped.Load() {
				t.Error("OnSpeechEnd fired after Stop returned")
			} else {
				t.Error("OnSpeechEnd fired for a turn that never ended")
			}
		},
	})

	if err := s.Start(audio.NewSliceSource(speechFrames(10000))); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("turn never started")
	}

	s.Stop()
	stopped.Store(true)
	s.Stop() // safe to repeat

	sessions := engine.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("created %d sessions, want 1", len(sessions))
	}
	if !sessions[0].Closed {
		t.Error("VAD session not closed by Stop")
	}
}

func TestSegmenter_StartTwiceFails(t *testing.T) {
	engine := &vadmock.Engine{}
	s := New(engine, Config{SampleRate: 16000}, Callbacks{})

	if err := s.Start(audio.NewSliceSource(nil)); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(audio.NewSliceSource(nil)); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
}

func TestSegmenter_SessionErrorPropagates(t *testing.T) {
	wantErr := errors.New("no model")
	engine := &vadmock.Engine{NewSessionErr: wantErr}
	s := New(engine, Config{SampleRate: 16000}, Callbacks{})

	if err := s.Start(audio.NewSliceSource(nil)); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestSegmenter_SessionReceivesSampleRate(t *testing.T) {
	engine := &vadmock.Engine{}
	s := New(engine, Config{SampleRate: 8000}, Callbacks{})
	if err := s.Start(audio.NewSliceSource(nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	sessions := engine.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("created %d sessions, want 1", len(sessions))
	}
	if got := sessions[0].Config.SampleRate; got != 8000 {
		t.Errorf("session sample rate = %d, want 8000", got)
	}
}

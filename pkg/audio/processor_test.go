package audio

import (
	"math"
	"testing"
)

// frame builds a constant-amplitude test frame of n samples.
func frame(amplitude float32, n int) AudioFrame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return AudioFrame{Samples: samples, SampleRate: 16000}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float32{0.5, 0.5, 0.5, 0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
	// Sign does not matter.
	if got := RMS([]float32{-0.5, 0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS of mixed signs = %v, want 0.5", got)
	}
}

func TestFrameProcessor_SilenceOnlyNeverEmits(t *testing.T) {
	p := NewFrameProcessor()
	for i := 0; i < 100; i++ {
		if _, ok := p.Process(frame(0.001, 160)); ok {
			t.Fatalf("frame %d: emitted an utterance from pure silence", i)
		}
	}
}

func TestFrameProcessor_FrameAccountingAtBoundary(t *testing.T) {
	const frameLen = 160
	p := NewFrameProcessor(WithMaxSilenceFrames(3))

	// 5 speech frames.
	for i := 0; i < 5; i++ {
		if _, ok := p.Process(frame(0.5, frameLen)); ok {
			t.Fatalf("speech frame %d: unexpected flush", i)
		}
	}
	// 3 silence frames stay inside the window and are buffered.
	for i := 0; i < 3; i++ {
		if _, ok := p.Process(frame(0, frameLen)); ok {
			t.Fatalf("silence frame %d: flushed before window was exceeded", i)
		}
	}
	// The 4th silence frame exceeds the window, triggers the flush, and is
	// itself NOT part of the utterance.
	u, ok := p.Process(frame(0, frameLen))
	if !ok {
		t.Fatal("expected flush on the frame exceeding the silence window")
	}
	want := (5 + 3) * frameLen
	if len(u.Samples) != want {
		t.Errorf("utterance samples = %d, want %d (speech + buffered silence)", len(u.Samples), want)
	}
	if u.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", u.SampleRate)
	}
}

func TestFrameProcessor_OneUtterancePerSpeechRun(t *testing.T) {
	p := NewFrameProcessor(WithMaxSilenceFrames(2))

	var emitted int
	run := func(speech, silence int) {
		for i := 0; i < speech; i++ {
			if _, ok := p.Process(frame(0.3, 160)); ok {
				emitted++
			}
		}
		for i := 0; i < silence; i++ {
			if _, ok := p.Process(frame(0, 160)); ok {
				emitted++
			}
		}
	}

	run(4, 5) // flush
	run(2, 5) // flush
	run(3, 1) // silence too short, still buffering

	if emitted != 2 {
		t.Errorf("emitted %d utterances, want 2", emitted)
	}
}

func TestFrameProcessor_SpeechResetsTheSilenceCounter(t *testing.T) {
	p := NewFrameProcessor(WithMaxSilenceFrames(3))

	p.Process(frame(0.5, 160))
	// 3 silence frames, then speech again: the run continues.
	for i := 0; i < 3; i++ {
		p.Process(frame(0, 160))
	}
	if _, ok := p.Process(frame(0.5, 160)); ok {
		t.Fatal("speech frame after short pause must not flush")
	}
	// Now a full window of silence flushes everything buffered so far.
	for i := 0; i < 3; i++ {
		if _, ok := p.Process(frame(0, 160)); ok {
			t.Fatalf("silence frame %d: early flush", i)
		}
	}
	u, ok := p.Process(frame(0, 160))
	if !ok {
		t.Fatal("expected flush")
	}
	// 2 speech + 3 pause + 3 trailing silence frames buffered.
	if want := 8 * 160; len(u.Samples) != want {
		t.Errorf("utterance samples = %d, want %d", len(u.Samples), want)
	}
}

func TestFrameProcessor_Reset(t *testing.T) {
	p := NewFrameProcessor(WithMaxSilenceFrames(1))
	p.Process(frame(0.5, 160))
	p.Reset()

	// After Reset the previous speech run is gone.
	if _, ok := p.Process(frame(0, 160)); ok {
		t.Fatal("flush after Reset")
	}
	if _, ok := p.Process(frame(0, 160)); ok {
		t.Fatal("flush after Reset with no new speech")
	}
}

func TestFrameProcessor_EmptyFrameIgnored(t *testing.T) {
	p := NewFrameProcessor()
	if _, ok := p.Process(AudioFrame{}); ok {
		t.Fatal("empty frame produced an utterance")
	}
}

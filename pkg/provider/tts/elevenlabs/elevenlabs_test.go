package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
)

func TestSynthesize(t *testing.T) {
	audio := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	var gotPath, gotKey, gotFormat string
	var gotBody synthesizeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(audio)
	}))
	defer srv.Close()

	p, err := New("xi-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	out, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{
		ID:           "voice-123",
		SpeakingRate: 1.1,
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !bytes.Equal(out.Data, audio) {
		t.Errorf("data = %v", out.Data)
	}
	if out.MIMEType != "audio/pcm" {
		t.Errorf("mime = %q", out.MIMEType)
	}

	if gotPath != "/text-to-speech/voice-123" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "xi-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotFormat != "pcm_16000" {
		t.Errorf("output format = %q", gotFormat)
	}
	if gotBody.Text != "hello" || gotBody.ModelID != "eleven_flash_v2_5" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.Speed != 1.1 {
		t.Errorf("voice settings = %+v", gotBody.VoiceSettings)
	}
}

func TestSynthesize_PolicyRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail": {"status": "detected_unusual_activity", "message": "Free tier usage disabled"}}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v"})

	var policyErr *tts.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("err = %v, want a policy error", err)
	}
	if policyErr.Provider != "elevenlabs" || policyErr.Code != "detected_unusual_activity" {
		t.Errorf("policy error = %+v", policyErr)
	}
	if !strings.Contains(policyErr.Message, "Free tier") {
		t.Errorf("message = %q", policyErr.Message)
	}
}

func TestSynthesize_TransientErrorIsNotPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v"})

	var policyErr *tts.PolicyError
	if errors.As(err, &policyErr) {
		t.Fatalf("502 classified as policy: %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v", err)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v"}); err == nil {
		t.Error("empty audio body accepted")
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), "", tts.VoiceProfile{ID: "v"}); err == nil {
		t.Error("empty text accepted")
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Error("empty voice ID accepted")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("empty apiKey accepted")
	}
}

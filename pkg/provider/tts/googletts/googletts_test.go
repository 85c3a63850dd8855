package googletts

import (
	"context"
	"encoding/base64"
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
	audio := []byte{1, 2, 3, 4}
	var gotBody synthesizeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text:synthesize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if key := r.URL.Query().Get("key"); key != "test-key" {
			t.Errorf("key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(synthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString(audio),
		})
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	out, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{
		ID:           "en-US-Neural2-C",
		SpeakingRate: 1.2,
		Pitch:        -2,
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(out.Data) != string(audio) {
		t.Errorf("data = %v, want the base64 payload decoded", out.Data)
	}
	if out.MIMEType != "audio/wav" {
		t.Errorf("mime = %q", out.MIMEType)
	}

	if gotBody.Input.Text != "hello" {
		t.Errorf("input = %+v", gotBody.Input)
	}
	if gotBody.Voice.Name != "en-US-Neural2-C" || gotBody.Voice.LanguageCode != "en-US" {
		t.Errorf("voice = %+v, want the language derived from the voice name", gotBody.Voice)
	}
	ac := gotBody.AudioConfig
	if ac.AudioEncoding != "LINEAR16" || ac.SampleRateHertz != 16000 {
		t.Errorf("audio config = %+v", ac)
	}
	if ac.SpeakingRate != 1.2 || ac.Pitch != -2 {
		t.Errorf("voice tuning = %+v", ac)
	}
}

func TestSynthesize_PolicyRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error": {"code": 403, "status": "PERMISSION_DENIED", "message": "API key restricted"}}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{})

	var policyErr *tts.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("err = %v, want a policy error", err)
	}
	if policyErr.Provider != "googletts" || policyErr.Code != "PERMISSION_DENIED" {
		t.Errorf("policy error = %+v", policyErr)
	}
}

func TestSynthesize_TransientErrorIsNotPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": {"code": 500, "status": "INTERNAL", "message": "backend error"}}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{})

	var policyErr *tts.PolicyError
	if errors.As(err, &policyErr) {
		t.Fatalf("transient 500 classified as policy: %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v", err)
	}
}

func TestSynthesize_MP3Encoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body synthesizeRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.AudioConfig.AudioEncoding != "MP3" {
			t.Errorf("encoding = %q", body.AudioConfig.AudioEncoding)
		}
		if body.AudioConfig.SampleRateHertz != 0 {
			t.Errorf("sample rate sent for MP3: %d", body.AudioConfig.SampleRateHertz)
		}
		json.NewEncoder(w).Encode(synthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte{9}),
		})
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL), WithEncoding(EncodingMP3))
	out, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if out.MIMEType != "audio/mpeg" {
		t.Errorf("mime = %q", out.MIMEType)
	}
}

func TestSynthesize_RequiresText(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), "", tts.VoiceProfile{}); err == nil {
		t.Error("empty text accepted")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("empty apiKey accepted")
	}
}

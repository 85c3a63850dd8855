package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
)

func TestComplete(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{
			"candidates": [{
				"content": {"parts": [{"text": "Hello "}, {"text": "there!"}]},
				"finishReason": "STOP"
			}]
		}`)
	}))
	defer srv.Close()

	p, err := New("test-key", WithModel("gemini-2.0-flash"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Prompt:       "hi",
		SystemPrompt: "Answer briefly.",
		Temperature:  0.1,
		TopP:         0.1,
		TopK:         1,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "Hello there!" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Truncated {
		t.Error("STOP finish marked truncated")
	}

	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("key = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "hi" {
		t.Errorf("contents = %+v", gotBody.Contents)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "Answer briefly." {
		t.Errorf("system instruction = %+v", gotBody.SystemInstruction)
	}
	gc := gotBody.GenerationConfig
	if gc == nil || gc.Temperature != 0.1 || gc.TopP != 0.1 || gc.TopK != 1 || gc.MaxOutputTokens != 256 {
		t.Errorf("generation config = %+v", gc)
	}
	if len(gotBody.SafetySettings) == 0 {
		t.Error("no safety settings sent")
	}
}

func TestComplete_Truncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"candidates": [{
				"content": {"parts": [{"text": "cut off mid"}]},
				"finishReason": "MAX_TOKENS"
			}]
		}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !resp.Truncated {
		t.Error("MAX_TOKENS finish not marked truncated")
	}
}

func TestComplete_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates": []}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "" {
		t.Errorf("text = %q, want empty for a blocked reply", resp.Text)
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want a 429 failure", err)
	}
}

func TestComplete_RequiresPrompt(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("empty prompt accepted")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("empty apiKey accepted")
	}
}

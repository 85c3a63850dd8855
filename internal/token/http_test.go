package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("app-key", []byte("super-secret"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func TestHandler_IssuesCredential(t *testing.T) {
	issuer := newTestIssuer(t)
	srv := httptest.NewServer(Handler(issuer, "default-room"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/token?identity=alice&room=lobby")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cred.Identity != "alice" || cred.RoomName != "lobby" {
		t.Errorf("credential = %+v", cred)
	}
	claims, err := issuer.Verify(cred.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Room != "lobby" {
		t.Errorf("room claim = %q, want lobby", claims.Room)
	}
}

func TestHandler_Defaults(t *testing.T) {
	issuer := newTestIssuer(t)
	srv := httptest.NewServer(Handler(issuer, "default-room"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/token")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cred.RoomName != "default-room" {
		t.Errorf("room = %q, want the configured default", cred.RoomName)
	}
	if !strings.HasPrefix(cred.Identity, "user_") {
		t.Errorf("identity = %q, want a generated user_ identity", cred.Identity)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(Handler(newTestIssuer(t), "default-room"))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/token", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestClient_Fetch(t *testing.T) {
	issuer := newTestIssuer(t)
	srv := httptest.NewServer(Handler(issuer, "default-room"))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	cred, err := client.Fetch(context.Background(), "bob", "lobby")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if cred.Identity != "bob" || cred.RoomName != "lobby" {
		t.Errorf("credential = %+v", cred)
	}
	if _, err := issuer.Verify(cred.Token); err != nil {
		t.Errorf("fetched token does not verify: %v", err)
	}
}

func TestClient_FetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Fetch(context.Background(), "bob", "lobby"); err == nil {
		t.Error("want error on 500 response")
	} else if !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v, want the status code mentioned", err)
	}
}

func TestClient_FetchEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Credential{Identity: "bob", RoomName: "lobby"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Fetch(context.Background(), "bob", "lobby"); err == nil {
		t.Error("want error when the response carries no token")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("empty base URL accepted")
	}
}
